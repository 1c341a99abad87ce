package notify

import (
	"context"
	"time"

	"wisefido-sos/internal/errs"
	"wisefido-sos/internal/metrics"
	"wisefido-sos/internal/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ContactSource 联系人来源（contacts.Directory 实现）
type ContactSource interface {
	List(ctx context.Context) ([]models.Contact, error)
}

// Options 群发配置
type Options struct {
	Pacing          time.Duration // 相邻两次发送的最小间隔
	DeliveryTimeout time.Duration // 单个联系人发送超时，0 = 不限
}

// Dispatcher 通知群发
// 所有发送（群发、测试消息）共用一个限速器，相邻两次发送至少间隔 Pacing
type Dispatcher struct {
	contacts ContactSource
	channel  Channel
	opts     Options
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewDispatcher 创建群发器
func NewDispatcher(contacts ContactSource, channel Channel, opts Options, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		contacts: contacts,
		channel:  channel,
		opts:     opts,
		limiter:  newLimiter(opts.Pacing),
		metrics:  m,
		logger:   logger,
	}
}

func newLimiter(pacing time.Duration) *rate.Limiter {
	if pacing <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(pacing), 1)
}

// DispatchToAll 向所有启用的联系人发送消息
// 目录为空时返回 NoContactsConfigured；单个联系人失败不影响其余联系人
func (d *Dispatcher) DispatchToAll(ctx context.Context, message, senderName string) (*models.DispatchResult, error) {
	list, err := d.contacts.List(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, err, "failed to load contacts")
	}
	if len(list) == 0 {
		return &models.DispatchResult{Success: false, Results: []models.DeliveryResult{}},
			errs.New(errs.KindNoContactsConfigured, "no contacts configured")
	}

	personalized := Personalize(message, senderName)

	results := make([]models.DeliveryResult, 0, len(list))
	summary := models.DispatchSummary{}

	for _, c := range list {
		if !c.IsActive {
			continue
		}
		summary.Total++

		res := models.DeliveryResult{Contact: c.Name, Phone: c.Phone}
		if err := d.deliver(ctx, c.Phone, personalized); err != nil {
			res.Error = err.Error()
		} else {
			res.Success = true
		}

		if res.Success {
			summary.Sent++
			d.metrics.RecordNotification("sent")
		} else {
			summary.Failed++
			d.metrics.RecordNotification("failed")
			d.logger.Warn("Failed to notify contact",
				zap.String("contact", c.Name),
				zap.String("phone", c.Phone),
				zap.String("error", res.Error),
			)
		}
		results = append(results, res)
	}

	d.logger.Info("Notifications dispatched",
		zap.Int("total", summary.Total),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
	)

	return &models.DispatchResult{
		Success: summary.Sent > 0,
		Results: results,
		Summary: summary,
	}, nil
}

// SendTest 给单个联系人发送测试消息
func (d *Dispatcher) SendTest(ctx context.Context, contact models.Contact) models.DeliveryResult {
	res := models.DeliveryResult{Contact: contact.Name, Phone: contact.Phone}
	if err := d.deliver(ctx, contact.Phone, TestMessage(contact.Name)); err != nil {
		res.Error = err.Error()
		d.metrics.RecordNotification("failed")
		d.logger.Warn("Failed to send test message",
			zap.String("contact", contact.Name),
			zap.Error(err),
		)
		return res
	}
	res.Success = true
	d.metrics.RecordNotification("sent")
	return res
}

// deliver 等待限速器放行后发送
func (d *Dispatcher) deliver(ctx context.Context, phone, message string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	if d.opts.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.DeliveryTimeout)
		defer cancel()
	}
	if err := d.channel.Deliver(ctx, phone, message); err != nil {
		return errs.Wrap(errs.KindDelivery, err, "delivery to %s failed", phone)
	}
	return nil
}
