package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Channel 单个联系人的发送通道
type Channel interface {
	Deliver(ctx context.Context, phone, message string) error
}

// Launcher 把深链交给设备端打开；返回 nil 表示外部应用已接受
type Launcher interface {
	Launch(ctx context.Context, link LaunchRequest) error
}

// LaunchRequest 一次深链打开请求
type LaunchRequest struct {
	URL     string `json:"url"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// BuildDeepLink 生成 https://<host>/<phone>?text=<message>
func BuildDeepLink(host, phone, message string) string {
	text := strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
	return fmt.Sprintf("https://%s/%s?text=%s", host, phone, text)
}

// DeepLinkChannel 通过消息应用深链发送
type DeepLinkChannel struct {
	host     string
	launcher Launcher
}

// NewDeepLinkChannel 创建深链通道
func NewDeepLinkChannel(host string, launcher Launcher) *DeepLinkChannel {
	return &DeepLinkChannel{host: host, launcher: launcher}
}

// Deliver 生成深链并交给 launcher
func (c *DeepLinkChannel) Deliver(ctx context.Context, phone, message string) error {
	req := LaunchRequest{
		URL:     BuildDeepLink(c.host, phone, message),
		Phone:   phone,
		Message: message,
	}
	if err := c.launcher.Launch(ctx, req); err != nil {
		return fmt.Errorf("failed to launch deep link: %w", err)
	}
	return nil
}
