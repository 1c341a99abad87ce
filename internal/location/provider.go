package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"wisefido-sos/internal/errs"
	"wisefido-sos/internal/metrics"
	"wisefido-sos/internal/models"

	"go.uber.org/zap"
)

// Options 定位参数
type Options struct {
	EnableHighAccuracy bool          `json:"enableHighAccuracy"`
	Timeout            time.Duration `json:"timeout"`
	MaxAge             time.Duration `json:"maxAge"`
	DistanceFilter     float64       `json:"distanceFilter"` // 米
	Interval           time.Duration `json:"interval"`
	FastestInterval    time.Duration `json:"fastestInterval"`
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		EnableHighAccuracy: true,
		Timeout:            20 * time.Second,
		MaxAge:             10 * time.Second,
		DistanceFilter:     10,
		Interval:           30 * time.Second,
		FastestInterval:    15 * time.Second,
	}
}

// Platform 设备定位能力
type Platform interface {
	// RequestPermission 返回是否已授权
	RequestPermission(ctx context.Context) (bool, error)
	// CurrentPosition 单次定位，阻塞直到拿到定位、出错或 ctx 结束
	CurrentPosition(ctx context.Context, opts Options) (models.LocationFix, error)
	// WatchPosition 持续定位；返回的 stop 用于停止
	WatchPosition(opts Options, onFix func(models.LocationFix), onErr func(error)) (stop func(), err error)
}

// Status 定位服务状态
type Status struct {
	IsTracking bool                `json:"isTracking"`
	LastKnown  *models.LocationFix `json:"lastKnown,omitempty"`
	Listeners  int                 `json:"listeners"`
}

// Provider 定位提供者
type Provider struct {
	platform Platform
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu         sync.Mutex
	lastKnown  *models.LocationFix
	stopWatch  func()
	onUpdate   func(models.LocationFix)
	lastEmit   *models.LocationFix
	lastEmitAt time.Time
	listeners  map[int]func(models.LocationFix)
	nextID     int

	now func() time.Time
}

// NewProvider 创建定位提供者
func NewProvider(platform Platform, opts Options, m *metrics.Metrics, logger *zap.Logger) *Provider {
	return &Provider{
		platform:  platform,
		opts:      opts,
		logger:    logger,
		metrics:   m,
		listeners: make(map[int]func(models.LocationFix)),
		now:       time.Now,
	}
}

// GetCurrentFix 单次定位
// 权限请求和平台定位共用同一个 Timeout；缓存定位未超过 MaxAge 时直接返回
func (p *Provider) GetCurrentFix(ctx context.Context) (models.LocationFix, error) {
	fixCtx := ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		fixCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	if err := p.ensurePermission(fixCtx); err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			err = errs.Wrap(errs.KindCancelled, err, "location request cancelled")
		}
		p.metrics.RecordLocationFix("platform", string(errs.KindOf(err)))
		p.logger.Warn("Location permission not available", zap.Error(err))
		return models.LocationFix{}, err
	}

	if fix, ok := p.cachedFix(); ok {
		p.metrics.RecordLocationFix("cache", "ok")
		p.logger.Debug("Using cached location fix", zap.Int64("timestamp", fix.Timestamp))
		return fix, nil
	}

	fix, err := p.platform.CurrentPosition(fixCtx, p.opts)
	if err != nil {
		mapped := MapError(err)
		// 调用方自己取消时不算定位超时
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			mapped = errs.Wrap(errs.KindCancelled, err, "location request cancelled")
		}
		p.metrics.RecordLocationFix("platform", string(mapped.Kind))
		p.logger.Warn("Failed to get current location",
			zap.String("kind", string(mapped.Kind)),
			zap.Error(err),
		)
		return models.LocationFix{}, mapped
	}

	if fix.Timestamp == 0 {
		fix.Timestamp = p.now().UnixMilli()
	}

	p.mu.Lock()
	f := fix
	p.lastKnown = &f
	p.mu.Unlock()

	p.metrics.RecordLocationFix("platform", "ok")
	p.logger.Info("Location fix acquired",
		zap.Float64("latitude", fix.Latitude),
		zap.Float64("longitude", fix.Longitude),
		zap.Float64("accuracy", fix.Accuracy),
	)
	return fix, nil
}

func (p *Provider) ensurePermission(ctx context.Context) error {
	granted, err := p.platform.RequestPermission(ctx)
	if err != nil {
		return MapError(err)
	}
	if !granted {
		return errs.New(errs.KindPermissionDenied, "location permission denied")
	}
	return nil
}

func (p *Provider) cachedFix() (models.LocationFix, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastKnown == nil || p.opts.MaxAge <= 0 {
		return models.LocationFix{}, false
	}
	age := p.now().Sub(time.UnixMilli(p.lastKnown.Timestamp))
	if age < 0 || age > p.opts.MaxAge {
		return models.LocationFix{}, false
	}
	return *p.lastKnown, true
}

// StartTracking 开始持续定位；opts 为 nil 时使用默认参数。已在跟踪时先停止旧的
func (p *Provider) StartTracking(ctx context.Context, onUpdate func(models.LocationFix), opts *Options) error {
	permCtx := ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		permCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	if err := p.ensurePermission(permCtx); err != nil {
		return err
	}

	o := p.opts
	if opts != nil {
		o = *opts
	}

	p.StopTracking()

	stop, err := p.platform.WatchPosition(o,
		func(fix models.LocationFix) { p.handleTrackedFix(o, fix) },
		func(err error) {
			mapped := MapError(err)
			p.logger.Warn("Location tracking error",
				zap.String("kind", string(mapped.Kind)),
				zap.Error(err),
			)
		},
	)
	if err != nil {
		return MapError(err)
	}

	p.mu.Lock()
	p.stopWatch = stop
	p.onUpdate = onUpdate
	p.lastEmit = nil
	p.lastEmitAt = time.Time{}
	p.mu.Unlock()

	p.logger.Info("Location tracking started",
		zap.Float64("distance_filter", o.DistanceFilter),
		zap.Duration("interval", o.Interval),
		zap.Duration("fastest_interval", o.FastestInterval),
	)
	return nil
}

// handleTrackedFix 应用位移和最快间隔过滤后同步分发给主回调和所有订阅者
func (p *Provider) handleTrackedFix(o Options, fix models.LocationFix) {
	p.mu.Lock()
	if p.stopWatch == nil {
		p.mu.Unlock()
		return
	}
	now := p.now()
	if p.lastEmit != nil {
		if o.DistanceFilter > 0 &&
			DistanceMeters(p.lastEmit.Latitude, p.lastEmit.Longitude, fix.Latitude, fix.Longitude) < o.DistanceFilter {
			p.mu.Unlock()
			return
		}
		if o.FastestInterval > 0 && now.Sub(p.lastEmitAt) < o.FastestInterval {
			p.mu.Unlock()
			return
		}
	}
	f := fix
	p.lastEmit = &f
	p.lastEmitAt = now
	p.lastKnown = &f

	callbacks := make([]func(models.LocationFix), 0, len(p.listeners)+1)
	if p.onUpdate != nil {
		callbacks = append(callbacks, p.onUpdate)
	}
	for _, l := range p.listeners {
		callbacks = append(callbacks, l)
	}
	p.mu.Unlock()

	for _, cb := range callbacks {
		cb(fix)
	}
}

// StopTracking 停止持续定位
func (p *Provider) StopTracking() {
	p.mu.Lock()
	stop := p.stopWatch
	p.stopWatch = nil
	p.onUpdate = nil
	p.mu.Unlock()

	if stop != nil {
		stop()
		p.logger.Info("Location tracking stopped")
	}
}

// Subscribe 订阅持续定位更新，返回取消订阅函数
func (p *Provider) Subscribe(onUpdate func(models.LocationFix)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = onUpdate
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// LastKnown 最近一次定位
func (p *Provider) LastKnown() *models.LocationFix {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastKnown == nil {
		return nil
	}
	f := *p.lastKnown
	return &f
}

// Status 当前状态
func (p *Provider) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		IsTracking: p.stopWatch != nil,
		Listeners:  len(p.listeners),
	}
	if p.lastKnown != nil {
		f := *p.lastKnown
		s.LastKnown = &f
	}
	return s
}

// Cleanup 停止跟踪并清空订阅者
func (p *Provider) Cleanup() {
	p.StopTracking()

	p.mu.Lock()
	p.listeners = make(map[int]func(models.LocationFix))
	p.mu.Unlock()
}
