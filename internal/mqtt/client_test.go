package mqtt

import (
	"testing"

	"wisefido-sos/internal/config"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewClient_BrokerUnreachable(t *testing.T) {
	cfg := &config.MQTTConfig{
		Broker:   "tcp://127.0.0.1:1",
		ClientID: "wisefido-sos-test",
	}

	client, err := NewClient(cfg, zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect to MQTT broker")
}

func TestClientImplementsInterfaces(t *testing.T) {
	var _ Publisher = (*Client)(nil)
	var _ Subscriber = (*Client)(nil)
}
