package location

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"wisefido-sos/internal/models"
	"wisefido-sos/internal/mqtt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MQTTClient 设备通道需要的 MQTT 能力
type MQTTClient interface {
	mqtt.Publisher
	mqtt.Subscriber
}

// 设备命令
const (
	CommandGetLocation       = "get_location"
	CommandRequestPermission = "request_permission"
	CommandStartTracking     = "start_tracking"
	CommandStopTracking      = "stop_tracking"
)

type commandPayload struct {
	Command   string          `json:"command"`
	RequestID string          `json:"request_id"`
	Options   *optionsPayload `json:"options,omitempty"`
}

type optionsPayload struct {
	EnableHighAccuracy bool    `json:"enableHighAccuracy"`
	TimeoutMs          int64   `json:"timeoutMs"`
	MaxAgeMs           int64   `json:"maxAgeMs"`
	DistanceFilterM    float64 `json:"distanceFilterM"`
	IntervalMs         int64   `json:"intervalMs"`
	FastestIntervalMs  int64   `json:"fastestIntervalMs"`
}

func toOptionsPayload(o Options) *optionsPayload {
	return &optionsPayload{
		EnableHighAccuracy: o.EnableHighAccuracy,
		TimeoutMs:          o.Timeout.Milliseconds(),
		MaxAgeMs:           o.MaxAge.Milliseconds(),
		DistanceFilterM:    o.DistanceFilter,
		IntervalMs:         o.Interval.Milliseconds(),
		FastestIntervalMs:  o.FastestInterval.Milliseconds(),
	}
}

type permissionPayload struct {
	Granted bool `json:"granted"`
}

type errorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type fixResult struct {
	fix models.LocationFix
	err error
}

type watcher struct {
	onFix func(models.LocationFix)
	onErr func(error)
}

// MQTTPlatform 通过 MQTT 与紧急设备交互的定位平台
// 设备上报主题: {prefix}/{device_id}/location, {prefix}/{device_id}/location/error, {prefix}/{device_id}/permission
// 服务下发主题: {prefix}/{device_id}/command
type MQTTPlatform struct {
	client   MQTTClient
	prefix   string
	deviceID string
	qos      byte
	logger   *zap.Logger

	mu          sync.Mutex
	granted     *bool
	permWaiters []chan bool
	fixWaiters  map[chan fixResult]struct{}
	watchers    map[int]watcher
	nextID      int
}

// NewMQTTPlatform 创建 MQTT 定位平台
func NewMQTTPlatform(client MQTTClient, prefix, deviceID string, logger *zap.Logger) *MQTTPlatform {
	return &MQTTPlatform{
		client:     client,
		prefix:     strings.TrimSuffix(prefix, "/"),
		deviceID:   deviceID,
		qos:        1,
		logger:     logger,
		fixWaiters: make(map[chan fixResult]struct{}),
		watchers:   make(map[int]watcher),
	}
}

func (p *MQTTPlatform) topic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", p.prefix, p.deviceID, suffix)
}

// Topics 订阅的设备上报主题
func (p *MQTTPlatform) Topics() []string {
	return []string{p.topic("location"), p.topic("location/error"), p.topic("permission")}
}

// Start 订阅设备上报主题
func (p *MQTTPlatform) Start() error {
	for _, t := range p.Topics() {
		if err := p.client.Subscribe(t, p.qos, p.handleMessage); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", t, err)
		}
	}
	p.logger.Info("MQTT location platform started",
		zap.String("device_id", p.deviceID),
		zap.Strings("topics", p.Topics()),
	)
	return nil
}

// Stop 取消订阅
func (p *MQTTPlatform) Stop() {
	if err := p.client.Unsubscribe(p.Topics()...); err != nil {
		p.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
}

// RequestPermission 已知授权状态时直接返回；否则下发请求并等待设备回复
func (p *MQTTPlatform) RequestPermission(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.granted != nil {
		g := *p.granted
		p.mu.Unlock()
		return g, nil
	}
	ch := make(chan bool, 1)
	p.permWaiters = append(p.permWaiters, ch)
	p.mu.Unlock()

	if err := p.sendCommand(ctx, CommandRequestPermission, nil); err != nil {
		p.removePermWaiter(ch)
		return false, err
	}

	select {
	case g := <-ch:
		return g, nil
	case <-ctx.Done():
		p.removePermWaiter(ch)
		return false, ctx.Err()
	}
}

func (p *MQTTPlatform) removePermWaiter(ch chan bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.permWaiters {
		if w == ch {
			p.permWaiters = append(p.permWaiters[:i], p.permWaiters[i+1:]...)
			return
		}
	}
}

// CurrentPosition 下发单次定位命令，等待设备上报的下一条定位或错误
func (p *MQTTPlatform) CurrentPosition(ctx context.Context, opts Options) (models.LocationFix, error) {
	ch := make(chan fixResult, 1)
	p.mu.Lock()
	p.fixWaiters[ch] = struct{}{}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.fixWaiters, ch)
		p.mu.Unlock()
	}()

	if err := p.sendCommand(ctx, CommandGetLocation, toOptionsPayload(opts)); err != nil {
		return models.LocationFix{}, err
	}

	select {
	case r := <-ch:
		return r.fix, r.err
	case <-ctx.Done():
		return models.LocationFix{}, ctx.Err()
	}
}

// WatchPosition 下发持续定位命令，设备上报的每条定位都交给 onFix
func (p *MQTTPlatform) WatchPosition(opts Options, onFix func(models.LocationFix), onErr func(error)) (func(), error) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = watcher{onFix: onFix, onErr: onErr}
	p.mu.Unlock()

	if err := p.sendCommand(context.Background(), CommandStartTracking, toOptionsPayload(opts)); err != nil {
		p.removeWatcher(id)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.removeWatcher(id)
			if err := p.sendCommand(context.Background(), CommandStopTracking, nil); err != nil {
				p.logger.Warn("Failed to send stop tracking command", zap.Error(err))
			}
		})
	}, nil
}

func (p *MQTTPlatform) removeWatcher(id int) {
	p.mu.Lock()
	delete(p.watchers, id)
	p.mu.Unlock()
}

func (p *MQTTPlatform) sendCommand(ctx context.Context, command string, opts *optionsPayload) error {
	payload, err := json.Marshal(commandPayload{
		Command:   command,
		RequestID: uuid.New().String(),
		Options:   opts,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	if err := p.client.Publish(ctx, p.topic("command"), p.qos, false, payload); err != nil {
		return fmt.Errorf("failed to send %s command: %w", command, err)
	}
	return nil
}

// handleMessage 处理设备上报
// 主题格式: {prefix}/{device_id}/location[/error] 或 {prefix}/{device_id}/permission
func (p *MQTTPlatform) handleMessage(topic string, payload []byte) error {
	base := p.prefix + "/" + p.deviceID + "/"
	if !strings.HasPrefix(topic, base) {
		return fmt.Errorf("invalid topic format: %s", topic)
	}

	switch strings.TrimPrefix(topic, base) {
	case "location":
		var fix models.LocationFix
		if err := json.Unmarshal(payload, &fix); err != nil {
			return fmt.Errorf("failed to unmarshal location: %w", err)
		}
		p.deliverFix(fix)
	case "location/error":
		var e errorPayload
		if err := json.Unmarshal(payload, &e); err != nil {
			return fmt.Errorf("failed to unmarshal location error: %w", err)
		}
		p.deliverError(&PlatformError{Code: e.Code, Message: e.Message})
	case "permission":
		var perm permissionPayload
		if err := json.Unmarshal(payload, &perm); err != nil {
			return fmt.Errorf("failed to unmarshal permission: %w", err)
		}
		p.setPermission(perm.Granted)
	default:
		return fmt.Errorf("unexpected topic: %s", topic)
	}
	return nil
}

func (p *MQTTPlatform) deliverFix(fix models.LocationFix) {
	p.mu.Lock()
	for ch := range p.fixWaiters {
		ch <- fixResult{fix: fix}
		delete(p.fixWaiters, ch)
	}
	ws := p.snapshotWatchers()
	p.mu.Unlock()

	for _, w := range ws {
		w.onFix(fix)
	}
}

func (p *MQTTPlatform) deliverError(err error) {
	p.mu.Lock()
	for ch := range p.fixWaiters {
		ch <- fixResult{err: err}
		delete(p.fixWaiters, ch)
	}
	ws := p.snapshotWatchers()
	p.mu.Unlock()

	for _, w := range ws {
		if w.onErr != nil {
			w.onErr(err)
		}
	}
}

func (p *MQTTPlatform) snapshotWatchers() []watcher {
	ws := make([]watcher, 0, len(p.watchers))
	for _, w := range p.watchers {
		ws = append(ws, w)
	}
	return ws
}

func (p *MQTTPlatform) setPermission(granted bool) {
	p.mu.Lock()
	p.granted = &granted
	waiters := p.permWaiters
	p.permWaiters = nil
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- granted
	}
	p.logger.Info("Location permission updated", zap.Bool("granted", granted))
}
