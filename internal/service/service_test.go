package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"wisefido-sos/internal/config"
	"wisefido-sos/internal/emergency"
	"wisefido-sos/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	topic    string
	retained bool
	payload  []byte
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	f.topic = topic
	f.retained = retained
	f.payload = payload
	return f.err
}

func TestStatusPublisher(t *testing.T) {
	pub := &fakePublisher{}
	observe := statusPublisher(pub, "sos/dev1/emergency/status", 1, zap.NewNop())

	observe(emergency.Snapshot{Step: models.StepDispatching, Progress: 80, IsActive: true})

	assert.Equal(t, "sos/dev1/emergency/status", pub.topic)
	assert.True(t, pub.retained)
	var snap emergency.Snapshot
	require.NoError(t, json.Unmarshal(pub.payload, &snap))
	assert.Equal(t, models.StepDispatching, snap.Step)
	assert.Equal(t, 80, snap.Progress)

	// 发布失败只记日志
	pub.err = errors.New("not connected")
	assert.NotPanics(t, func() { observe(emergency.Snapshot{Step: models.StepError}) })
}

func TestNewSOSService_RedisUnavailable(t *testing.T) {
	cfg := &config.Config{}
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := NewSOSService(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping redis")
}
