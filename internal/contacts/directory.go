package contacts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"wisefido-sos/internal/errs"
	"wisefido-sos/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store 联系人持久化（store.Storage 实现）
type Store interface {
	GetContacts(ctx context.Context) ([]models.Contact, error)
	SaveContacts(ctx context.Context, contacts []models.Contact) error
}

// Options 目录配置
type Options struct {
	CountryCode string // 默认国家码，如 "+57"
	NameMin     int
	NameMax     int
	MaxContacts int // 0 = 不限制
}

// Directory 紧急联系人目录
// 目录独占联系人集合：读出、修改、整体写回都在 mu 内完成，对外只返回副本
type Directory struct {
	store     Store
	opts      Options
	validator Validator
	logger    *zap.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewDirectory 创建联系人目录
func NewDirectory(store Store, opts Options, logger *zap.Logger) *Directory {
	if opts.NameMin <= 0 {
		opts.NameMin = 2
	}
	if opts.NameMax <= 0 {
		opts.NameMax = 50
	}
	return &Directory{
		store:     store,
		opts:      opts,
		validator: Validator{NameMin: opts.NameMin, NameMax: opts.NameMax},
		logger:    logger,
		now:       time.Now,
	}
}

// Normalize 按目录的默认国家码规范化电话
func (d *Directory) Normalize(phone string) string {
	return Normalize(phone, d.opts.CountryCode)
}

// Add 新增联系人（校验 → 规范化 → 查重 → 写入）
func (d *Directory) Add(ctx context.Context, in models.ContactInput) (*models.Contact, error) {
	if err := d.validator.Validate(in); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	list, err := d.store.GetContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}

	if d.opts.MaxContacts > 0 && len(list) >= d.opts.MaxContacts {
		return nil, errs.Validation([]errs.FieldError{{
			Field:   "contacts",
			Message: fmt.Sprintf("maximum of %d contacts reached", d.opts.MaxContacts),
		}})
	}

	phone := d.Normalize(in.Phone)
	if dup := findByPhone(list, phone, ""); dup != nil {
		return nil, errs.New(errs.KindDuplicate, "a contact with phone %s already exists", phone)
	}

	contact := models.Contact{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(in.Name),
		Phone:     phone,
		Email:     strings.TrimSpace(in.Email),
		Relation:  relationOrDefault(in.Relation),
		IsActive:  true,
		CreatedAt: d.now().UTC(),
	}

	list = append(list, contact)
	if err := d.store.SaveContacts(ctx, list); err != nil {
		return nil, fmt.Errorf("failed to save contacts: %w", err)
	}

	d.logger.Info("Contact added",
		zap.String("contact_id", contact.ID),
		zap.String("phone", contact.Phone),
	)
	return &contact, nil
}

// Edit 编辑联系人（重新校验；查重时排除自身）
func (d *Directory) Edit(ctx context.Context, id string, in models.ContactInput) (*models.Contact, error) {
	if err := d.validator.Validate(in); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	list, err := d.store.GetContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}

	idx := indexOf(list, id)
	if idx < 0 {
		return nil, errs.New(errs.KindNotFound, "contact %s not found", id)
	}

	phone := d.Normalize(in.Phone)
	if dup := findByPhone(list, phone, id); dup != nil {
		return nil, errs.New(errs.KindDuplicate, "a contact with phone %s already exists", phone)
	}

	now := d.now().UTC()
	updated := list[idx]
	updated.Name = strings.TrimSpace(in.Name)
	updated.Phone = phone
	updated.Email = strings.TrimSpace(in.Email)
	updated.Relation = relationOrDefault(in.Relation)
	updated.UpdatedAt = &now
	list[idx] = updated

	if err := d.store.SaveContacts(ctx, list); err != nil {
		return nil, fmt.Errorf("failed to save contacts: %w", err)
	}

	d.logger.Info("Contact updated", zap.String("contact_id", id))
	return &updated, nil
}

// Remove 删除联系人
func (d *Directory) Remove(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	list, err := d.store.GetContacts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load contacts: %w", err)
	}

	idx := indexOf(list, id)
	if idx < 0 {
		return errs.New(errs.KindNotFound, "contact %s not found", id)
	}

	list = append(list[:idx], list[idx+1:]...)
	if err := d.store.SaveContacts(ctx, list); err != nil {
		return fmt.Errorf("failed to save contacts: %w", err)
	}

	d.logger.Info("Contact removed", zap.String("contact_id", id))
	return nil
}

// SetActive 启用/停用联系人
func (d *Directory) SetActive(ctx context.Context, id string, active bool) (*models.Contact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list, err := d.store.GetContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}

	idx := indexOf(list, id)
	if idx < 0 {
		return nil, errs.New(errs.KindNotFound, "contact %s not found", id)
	}

	now := d.now().UTC()
	list[idx].IsActive = active
	list[idx].UpdatedAt = &now
	if err := d.store.SaveContacts(ctx, list); err != nil {
		return nil, fmt.Errorf("failed to save contacts: %w", err)
	}

	c := list[idx]
	return &c, nil
}

// Get 按 ID 读取
func (d *Directory) Get(ctx context.Context, id string) (*models.Contact, error) {
	list, err := d.List(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		return nil, errs.New(errs.KindNotFound, "contact %s not found", id)
	}
	c := list[idx]
	return &c, nil
}

// List 全部联系人（副本）
func (d *Directory) List(ctx context.Context) ([]models.Contact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list, err := d.store.GetContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	return list, nil
}

// Active 启用中的联系人
func (d *Directory) Active(ctx context.Context) ([]models.Contact, error) {
	list, err := d.List(ctx)
	if err != nil {
		return nil, err
	}
	return FilterActive(list), nil
}

// Stats 统计
func (d *Directory) Stats(ctx context.Context) (models.ContactStats, error) {
	list, err := d.List(ctx)
	if err != nil {
		return models.ContactStats{}, err
	}
	active := len(FilterActive(list))
	return models.ContactStats{
		Total:        len(list),
		Active:       active,
		Inactive:     len(list) - active,
		HasContacts:  len(list) > 0,
		IsConfigured: active > 0,
	}, nil
}

// FilterActive 过滤出启用的联系人
func FilterActive(list []models.Contact) []models.Contact {
	out := make([]models.Contact, 0, len(list))
	for _, c := range list {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out
}

func indexOf(list []models.Contact, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func findByPhone(list []models.Contact, phone, excludeID string) *models.Contact {
	for i := range list {
		if list[i].ID != excludeID && list[i].Phone == phone {
			return &list[i]
		}
	}
	return nil
}

func relationOrDefault(relation string) string {
	if r := strings.TrimSpace(relation); r != "" {
		return r
	}
	return models.DefaultRelation
}
