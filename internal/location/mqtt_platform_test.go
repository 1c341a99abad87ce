package location

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"wisefido-sos/internal/errs"
	"wisefido-sos/internal/models"
	"wisefido-sos/internal/mqtt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeMQTT 记录发布的消息；onPublish 用来模拟设备回复
type fakeMQTT struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published []commandPayload
	onPublish func(cmd commandPayload)
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	var cmd commandPayload
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return err
	}
	f.mu.Lock()
	f.published = append(f.published, cmd)
	cb := f.onPublish
	f.mu.Unlock()
	if cb != nil {
		go cb(cmd)
	}
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	f.handlers[topic] = handler
	f.mu.Unlock()
	return nil
}

func (f *fakeMQTT) Unsubscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.handlers, t)
	}
	return nil
}

func (f *fakeMQTT) deliver(t *testing.T, topic string, v any) {
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	require.NotNil(t, h, "no handler for %s", topic)
	require.NoError(t, h(topic, payload))
}

func (f *fakeMQTT) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.published))
	for _, c := range f.published {
		out = append(out, c.Command)
	}
	return out
}

func TestMQTTPlatform_PermissionAndFix(t *testing.T) {
	client := newFakeMQTT()
	platform := NewMQTTPlatform(client, "sos", "dev-1", zap.NewNop())
	require.NoError(t, platform.Start())

	client.onPublish = func(cmd commandPayload) {
		switch cmd.Command {
		case CommandRequestPermission:
			client.deliver(t, "sos/dev-1/permission", permissionPayload{Granted: true})
		case CommandGetLocation:
			client.deliver(t, "sos/dev-1/location", models.LocationFix{Latitude: 4.6, Longitude: -74.08, Accuracy: 4, Timestamp: time.Now().UnixMilli()})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	granted, err := platform.RequestPermission(ctx)
	require.NoError(t, err)
	assert.True(t, granted)

	// 已知授权后不再下发请求
	_, err = platform.RequestPermission(ctx)
	require.NoError(t, err)

	fix, err := platform.CurrentPosition(ctx, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 4.6, fix.Latitude)

	assert.Equal(t, []string{CommandRequestPermission, CommandGetLocation}, client.commands())
}

func TestMQTTPlatform_LocationErrorThroughProvider(t *testing.T) {
	client := newFakeMQTT()
	platform := NewMQTTPlatform(client, "sos", "dev-1", zap.NewNop())
	require.NoError(t, platform.Start())
	client.deliver(t, "sos/dev-1/permission", permissionPayload{Granted: true})

	client.onPublish = func(cmd commandPayload) {
		if cmd.Command == CommandGetLocation {
			client.deliver(t, "sos/dev-1/location/error", errorPayload{Code: CodePositionUnavailable, Message: "no satellites"})
		}
	}

	provider := NewProvider(platform, DefaultOptions(), nil, zap.NewNop())
	_, err := provider.GetCurrentFix(context.Background())
	assert.True(t, errs.IsKind(err, errs.KindPositionUnavailable))
}

func TestMQTTPlatform_NoReplyTimesOut(t *testing.T) {
	client := newFakeMQTT()
	platform := NewMQTTPlatform(client, "sos", "dev-1", zap.NewNop())
	require.NoError(t, platform.Start())
	client.deliver(t, "sos/dev-1/permission", permissionPayload{Granted: true})

	opts := DefaultOptions()
	opts.Timeout = 30 * time.Millisecond
	provider := NewProvider(platform, opts, nil, zap.NewNop())

	_, err := provider.GetCurrentFix(context.Background())
	assert.True(t, errs.IsKind(err, errs.KindTimeout))
}

func TestMQTTPlatform_PermissionNoReplyTimesOut(t *testing.T) {
	client := newFakeMQTT()
	platform := NewMQTTPlatform(client, "sos", "dev-1", zap.NewNop())
	require.NoError(t, platform.Start())

	opts := DefaultOptions()
	opts.Timeout = 30 * time.Millisecond
	provider := NewProvider(platform, opts, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := provider.GetCurrentFix(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		assert.True(t, errs.IsKind(err, errs.KindTimeout))
	case <-time.After(2 * time.Second):
		t.Fatal("GetCurrentFix did not return while the device ignored the permission request")
	}

	assert.Equal(t, []string{CommandRequestPermission}, client.commands())
	platform.mu.Lock()
	assert.Empty(t, platform.permWaiters)
	platform.mu.Unlock()

	// 之后设备回复授权，后续定位正常
	client.deliver(t, "sos/dev-1/permission", permissionPayload{Granted: true})
	granted, err := platform.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestMQTTPlatform_Watch(t *testing.T) {
	client := newFakeMQTT()
	platform := NewMQTTPlatform(client, "sos/", "dev-1", zap.NewNop())
	require.NoError(t, platform.Start())

	var got []models.LocationFix
	stop, err := platform.WatchPosition(DefaultOptions(), func(f models.LocationFix) { got = append(got, f) }, nil)
	require.NoError(t, err)

	client.deliver(t, "sos/dev-1/location", models.LocationFix{Latitude: 1})
	stop()
	stop()
	client.deliver(t, "sos/dev-1/location", models.LocationFix{Latitude: 2})

	require.Len(t, got, 1)
	assert.Equal(t, []string{CommandStartTracking, CommandStopTracking}, client.commands())
}

func TestMQTTPlatform_HandleMessageErrors(t *testing.T) {
	platform := NewMQTTPlatform(newFakeMQTT(), "sos", "dev-1", zap.NewNop())

	assert.Error(t, platform.handleMessage("other/dev-1/location", []byte(`{}`)))
	assert.Error(t, platform.handleMessage("sos/dev-1/location", []byte(`not json`)))
	assert.Error(t, platform.handleMessage("sos/dev-1/unknown", []byte(`{}`)))
}
