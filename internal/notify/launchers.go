package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-sos/internal/mqtt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// gatewayResponse 推送网关响应
type gatewayResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// HTTPLauncher 通过推送网关让手机打开深链
type HTTPLauncher struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPLauncher 创建 HTTP launcher（不重试，每次请求都会发出一条消息）
func NewHTTPLauncher(gatewayURL string, timeout time.Duration, logger *zap.Logger) *HTTPLauncher {
	client := resty.New().
		SetBaseURL(gatewayURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPLauncher{
		httpClient: client,
		logger:     logger,
	}
}

// Launch 调用网关 POST /v1/deeplinks
func (l *HTTPLauncher) Launch(ctx context.Context, req LaunchRequest) error {
	var response gatewayResponse
	resp, err := l.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&response).
		SetError(&response).
		Post("/v1/deeplinks")
	if err != nil {
		return fmt.Errorf("failed to call push gateway: %w", err)
	}

	if resp.IsError() {
		l.logger.Warn("Push gateway returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", response.Error),
		)
		return fmt.Errorf("push gateway error: status %d: %s", resp.StatusCode(), response.Error)
	}
	if !response.Success {
		return fmt.Errorf("deep link not accepted: %s", response.Error)
	}
	return nil
}

// MQTTLauncher 通过 MQTT 把深链下发给设备
// 主题: {prefix}/{device_id}/deeplink
type MQTTLauncher struct {
	publisher mqtt.Publisher
	topic     string
	qos       byte
	logger    *zap.Logger
}

// NewMQTTLauncher 创建 MQTT launcher
func NewMQTTLauncher(publisher mqtt.Publisher, prefix, deviceID string, logger *zap.Logger) *MQTTLauncher {
	return &MQTTLauncher{
		publisher: publisher,
		topic:     fmt.Sprintf("%s/%s/deeplink", prefix, deviceID),
		qos:       1,
		logger:    logger,
	}
}

// Launch 发布深链；broker 确认即视为已接受
func (l *MQTTLauncher) Launch(ctx context.Context, req LaunchRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal deep link: %w", err)
	}
	if err := l.publisher.Publish(ctx, l.topic, l.qos, false, payload); err != nil {
		return err
	}
	l.logger.Debug("Deep link published", zap.String("topic", l.topic), zap.String("phone", req.Phone))
	return nil
}
