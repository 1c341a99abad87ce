package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-sos/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 存储键（与 App 端保持一致）
const (
	KeyUserName     = "user_name"
	KeyContacts     = "contacts"
	KeySettings     = "app_settings"
	KeyAlertHistory = "alert_history"
	KeyOnboarding   = "has_seen_welcome"
)

// Storage 结构化 K/V 存储
// 每个键保存一个 JSON 值；contacts 和 alert_history 每次修改都整体重写
type Storage struct {
	kv     KV
	prefix string
	logger *zap.Logger

	// 保护 alert_history 的读-改-写
	historyMu sync.Mutex
	now       func() time.Time
}

// NewStorage 创建存储
func NewStorage(kv KV, prefix string, logger *zap.Logger) *Storage {
	return &Storage{
		kv:     kv,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Storage) key(k string) string {
	return s.prefix + k
}

// Save 保存任意 JSON 值
func (s *Storage) Save(ctx context.Context, key string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, s.key(key), string(jsonData), 0); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	s.logger.Debug("Storage saved", zap.String("key", key))
	return nil
}

// Load 读取 JSON 值；键不存在时返回 found=false
func (s *Storage) Load(ctx context.Context, key string, dest any) (bool, error) {
	val, err := s.kv.Get(ctx, s.key(key))
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Remove 删除键
func (s *Storage) Remove(ctx context.Context, key string) error {
	if err := s.kv.Del(ctx, s.key(key)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Clear 清空所有已知键
func (s *Storage) Clear(ctx context.Context) error {
	keys := []string{KeyUserName, KeyContacts, KeySettings, KeyAlertHistory, KeyOnboarding}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.key(k))
	}
	if err := s.kv.Del(ctx, full...); err != nil {
		return fmt.Errorf("failed to clear storage: %w", err)
	}
	s.logger.Info("Storage cleared")
	return nil
}

// ============================================
// 用户
// ============================================

func (s *Storage) SaveUserName(ctx context.Context, name string) error {
	return s.Save(ctx, KeyUserName, name)
}

func (s *Storage) GetUserName(ctx context.Context) (string, error) {
	var name string
	if _, err := s.Load(ctx, KeyUserName, &name); err != nil {
		return "", err
	}
	return name, nil
}

// MarkWelcomeSeen 记录已看过欢迎页
func (s *Storage) MarkWelcomeSeen(ctx context.Context) error {
	return s.Save(ctx, KeyOnboarding, true)
}

// Initialize 读取启动状态；未看过欢迎页或未设置用户名都视为首次使用
func (s *Storage) Initialize(ctx context.Context) (models.AppState, error) {
	var seen bool
	if _, err := s.Load(ctx, KeyOnboarding, &seen); err != nil {
		return models.AppState{IsFirstTime: true}, err
	}
	name, err := s.GetUserName(ctx)
	if err != nil {
		return models.AppState{IsFirstTime: true}, err
	}
	return models.AppState{
		IsFirstTime:    !seen || name == "",
		UserName:       name,
		HasSeenWelcome: seen,
	}, nil
}

// ============================================
// 联系人
// ============================================

func (s *Storage) SaveContacts(ctx context.Context, contacts []models.Contact) error {
	if contacts == nil {
		contacts = []models.Contact{}
	}
	return s.Save(ctx, KeyContacts, contacts)
}

func (s *Storage) GetContacts(ctx context.Context) ([]models.Contact, error) {
	contacts := []models.Contact{}
	if _, err := s.Load(ctx, KeyContacts, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// ============================================
// 设置
// ============================================

func (s *Storage) SaveSettings(ctx context.Context, settings models.Settings) error {
	return s.Save(ctx, KeySettings, settings)
}

func (s *Storage) GetSettings(ctx context.Context) (models.Settings, error) {
	settings := models.DefaultSettings()
	if _, err := s.Load(ctx, KeySettings, &settings); err != nil {
		return models.DefaultSettings(), err
	}
	return settings, nil
}

// ============================================
// 告警历史
// ============================================

// AppendAlertHistory 追加一条历史记录（分配 ID 和时间戳），返回写入的记录
func (s *Storage) AppendAlertHistory(ctx context.Context, record models.HistoryRecord) (models.HistoryRecord, error) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	history, err := s.GetAlertHistory(ctx)
	if err != nil {
		return record, err
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now().UTC()
	}
	history = append(history, record)

	if err := s.Save(ctx, KeyAlertHistory, history); err != nil {
		return record, err
	}
	return record, nil
}

func (s *Storage) GetAlertHistory(ctx context.Context) ([]models.HistoryRecord, error) {
	history := []models.HistoryRecord{}
	if _, err := s.Load(ctx, KeyAlertHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}
