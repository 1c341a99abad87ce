package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"wisefido-sos/internal/models"
	"wisefido-sos/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Log 主记录（store.Storage 实现，K/V 键 alert_history）
type Log interface {
	AppendAlertHistory(ctx context.Context, rec models.HistoryRecord) (models.HistoryRecord, error)
	GetAlertHistory(ctx context.Context) ([]models.HistoryRecord, error)
}

// Mirror 查询镜像（repository.AlertHistoryRepository 实现）
type Mirror interface {
	InsertRecord(ctx context.Context, rec models.HistoryRecord) error
}

// EventPublisher 告警事件下游通知
type EventPublisher interface {
	PublishRecord(ctx context.Context, rec models.HistoryRecord) error
}

// StreamPublisher 把历史记录发布到 Redis Stream
type StreamPublisher struct {
	client *redis.Client
	stream string
}

// NewStreamPublisher 创建 Stream 发布器
func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream}
}

// PublishRecord 发布一条记录
func (p *StreamPublisher) PublishRecord(ctx context.Context, rec models.HistoryRecord) error {
	if _, err := store.PublishJSONToStream(ctx, p.client, p.stream, rec); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", p.stream, err)
	}
	return nil
}

// ListOptions 查询条件
type ListOptions struct {
	Type  string // 空 = 全部
	Since *time.Time
	Limit int // 0 = 不限
}

// Store 只追加的告警历史
// K/V 写入成功才算追加成功；镜像和事件发布失败只记日志
type Store struct {
	log       Log
	mirror    Mirror
	publisher EventPublisher
	logger    *zap.Logger
}

// NewStore 创建历史存储；mirror/publisher 可为 nil
func NewStore(log Log, mirror Mirror, publisher EventPublisher, logger *zap.Logger) *Store {
	return &Store{
		log:       log,
		mirror:    mirror,
		publisher: publisher,
		logger:    logger,
	}
}

// Append 追加一条记录，返回带 ID 和时间戳的记录
func (s *Store) Append(ctx context.Context, rec models.HistoryRecord) (models.HistoryRecord, error) {
	saved, err := s.log.AppendAlertHistory(ctx, rec)
	if err != nil {
		return rec, fmt.Errorf("failed to append alert history: %w", err)
	}

	if s.mirror != nil {
		if err := s.mirror.InsertRecord(ctx, saved); err != nil {
			s.logger.Warn("Failed to mirror alert history to database",
				zap.String("record_id", saved.ID),
				zap.Error(err),
			)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishRecord(ctx, saved); err != nil {
			s.logger.Warn("Failed to publish alert history event",
				zap.String("record_id", saved.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Alert history appended",
		zap.String("record_id", saved.ID),
		zap.String("type", saved.Type),
	)
	return saved, nil
}

// List 按时间倒序返回历史记录
func (s *Store) List(ctx context.Context, opts ListOptions) ([]models.HistoryRecord, error) {
	all, err := s.log.GetAlertHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read alert history: %w", err)
	}

	out := make([]models.HistoryRecord, 0, len(all))
	for _, rec := range all {
		if opts.Type != "" && rec.Type != opts.Type {
			continue
		}
		if opts.Since != nil && rec.Timestamp.Before(*opts.Since) {
			continue
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
