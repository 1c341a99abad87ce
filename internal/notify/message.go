package notify

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"wisefido-sos/internal/models"
)

// UserNamePlaceholder 群发时替换为发送人姓名
const UserNamePlaceholder = "{userName}"

const emergencyFooter = "⚠️ Esta es una alerta de emergencia. Por favor, responde inmediatamente."

// MessageBuilder 生成告警消息文本
type MessageBuilder struct {
	loc *time.Location
	now func() time.Time
}

// NewMessageBuilder 按时区创建消息生成器
func NewMessageBuilder(timezone string) (*MessageBuilder, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", timezone, err)
	}
	return &MessageBuilder{loc: loc, now: time.Now}, nil
}

// Emergency 紧急告警消息
func (b *MessageBuilder) Emergency(userName string, fix models.LocationFix) string {
	return b.build(userName, fix, true)
}

// Share 普通位置分享消息
func (b *MessageBuilder) Share(userName string, fix models.LocationFix) string {
	return b.build(userName, fix, false)
}

func (b *MessageBuilder) build(userName string, fix models.LocationFix, emergency bool) string {
	links := models.BuildMapLinks(fix.Latitude, fix.Longitude)

	var sb strings.Builder
	if emergency {
		fmt.Fprintf(&sb, "🚨 ¡EMERGENCIA de %s!", userName)
	} else {
		fmt.Fprintf(&sb, "📍 UBICACIÓN de %s", userName)
	}
	sb.WriteString("\n\n📍 Ver ubicación:\n")
	sb.WriteString(links.Google)
	sb.WriteString("\n\n🕒 ")
	sb.WriteString(b.now().In(b.loc).Format("02/01/2006, 15:04"))
	if emergency {
		sb.WriteString("\n\n")
		sb.WriteString(emergencyFooter)
	}
	return sb.String()
}

// TestMessage 测试联系人用的固定消息
func TestMessage(contactName string) string {
	return "🧪 Mensaje de prueba de PanicApp\n\n" +
		"Hola " + contactName + ", este es un mensaje de prueba para verificar que puedes recibir alertas de emergencia.\n\n" +
		"✅ Si recibes este mensaje, todo está funcionando correctamente."
}

// Personalize 替换发送人占位符
func Personalize(message, userName string) string {
	return strings.ReplaceAll(message, UserNamePlaceholder, userName)
}
