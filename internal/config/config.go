package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig 数据库配置（历史记录镜像到 PostgreSQL 时使用）
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config SOS 服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	HTTP struct {
		Addr string // 监听地址，如 ":8090"
	}

	// SOS 服务特定配置
	SOS struct {
		// 存储键前缀（Redis 中所有 K/V 键都带此前缀）
		KeyPrefix string

		Contacts struct {
			DefaultCountryCode string // 默认国家码，如 "+57"
			NameMinLength      int
			NameMaxLength      int
			MaxContacts        int // 0 = 不限制
		}

		Location struct {
			DeviceID           string        // 设备标识（MQTT 主题中的 {device_id}）
			TopicPrefix        string        // 主题前缀，如 "sos"
			EnableHighAccuracy bool
			Timeout            time.Duration // 单次定位最长等待
			MaxAge             time.Duration // 可接受的缓存定位最大年龄
			DistanceFilter     float64       // 连续跟踪最小位移（米）
			Interval           time.Duration // 连续跟踪名义间隔
			FastestInterval    time.Duration // 连续跟踪最快间隔
		}

		Notify struct {
			Transport       string        // "http" 或 "mqtt"
			MessagingHost   string        // 深链主机，如 "wa.me"
			GatewayURL      string        // http 模式下的推送网关地址
			Pacing          time.Duration // 相邻两次发送之间的间隔
			DeliveryTimeout time.Duration // 单个联系人发送超时
		}

		Ledger struct {
			RPCURL          string
			ContractAddress string
			PrivateKey      string // 默认钱包凭据（可为空，激活时可单独传入）
			MinBalanceEth   float64
			GasLimit        uint64
			ExplorerTxURL   string
			SubmitTimeout   time.Duration
		}

		History struct {
			MirrorToPostgres bool   // 是否同时写入 PostgreSQL
			Stream           string // Redis Stream 名称
		}

		Message struct {
			Timezone string // 消息中时间的时区
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 5)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 2)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-sos")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	cfg.SOS.KeyPrefix = getEnv("SOS_KEY_PREFIX", "sos:")

	cfg.SOS.Contacts.DefaultCountryCode = getEnv("SOS_DEFAULT_COUNTRY_CODE", "+57")
	cfg.SOS.Contacts.NameMinLength = 2
	cfg.SOS.Contacts.NameMaxLength = 50
	cfg.SOS.Contacts.MaxContacts = getEnvInt("SOS_MAX_CONTACTS", 10)

	cfg.SOS.Location.DeviceID = getEnv("SOS_DEVICE_ID", "default")
	cfg.SOS.Location.TopicPrefix = getEnv("SOS_TOPIC_PREFIX", "sos")
	cfg.SOS.Location.EnableHighAccuracy = getEnvBool("SOS_LOCATION_HIGH_ACCURACY", true)
	cfg.SOS.Location.Timeout = getEnvDuration("SOS_LOCATION_TIMEOUT", 20*time.Second)
	cfg.SOS.Location.MaxAge = getEnvDuration("SOS_LOCATION_MAX_AGE", 10*time.Second)
	cfg.SOS.Location.DistanceFilter = getEnvFloat("SOS_LOCATION_DISTANCE_FILTER", 10)
	cfg.SOS.Location.Interval = getEnvDuration("SOS_LOCATION_INTERVAL", 30*time.Second)
	cfg.SOS.Location.FastestInterval = getEnvDuration("SOS_LOCATION_FASTEST_INTERVAL", 15*time.Second)

	cfg.SOS.Notify.Transport = getEnv("SOS_NOTIFY_TRANSPORT", "mqtt")
	cfg.SOS.Notify.MessagingHost = getEnv("SOS_MESSAGING_HOST", "wa.me")
	cfg.SOS.Notify.GatewayURL = getEnv("SOS_NOTIFY_GATEWAY_URL", "")
	cfg.SOS.Notify.Pacing = getEnvDuration("SOS_NOTIFY_PACING", time.Second)
	cfg.SOS.Notify.DeliveryTimeout = getEnvDuration("SOS_NOTIFY_DELIVERY_TIMEOUT", 10*time.Second)

	cfg.SOS.Ledger.RPCURL = getEnv("SOS_LEDGER_RPC_URL", "")
	cfg.SOS.Ledger.ContractAddress = getEnv("SOS_LEDGER_CONTRACT_ADDRESS", "")
	cfg.SOS.Ledger.PrivateKey = getEnv("SOS_LEDGER_PRIVATE_KEY", "")
	cfg.SOS.Ledger.MinBalanceEth = getEnvFloat("SOS_LEDGER_MIN_BALANCE_ETH", 0.001)
	cfg.SOS.Ledger.GasLimit = uint64(getEnvInt("SOS_LEDGER_GAS_LIMIT", 300000))
	cfg.SOS.Ledger.ExplorerTxURL = getEnv("SOS_LEDGER_EXPLORER_TX_URL", "https://sepolia.etherscan.io/tx/")
	cfg.SOS.Ledger.SubmitTimeout = getEnvDuration("SOS_LEDGER_SUBMIT_TIMEOUT", 120*time.Second)

	cfg.SOS.History.MirrorToPostgres = getEnvBool("SOS_HISTORY_POSTGRES", false)
	cfg.SOS.History.Stream = getEnv("SOS_HISTORY_STREAM", "sos:alerts")

	cfg.SOS.Message.Timezone = getEnv("SOS_MESSAGE_TIMEZONE", "America/Bogota")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if t := cfg.SOS.Notify.Transport; t != "http" && t != "mqtt" {
		return nil, fmt.Errorf("invalid SOS_NOTIFY_TRANSPORT %q (want http or mqtt)", t)
	}
	if cfg.SOS.Notify.Transport == "http" && cfg.SOS.Notify.GatewayURL == "" {
		return nil, fmt.Errorf("SOS_NOTIFY_GATEWAY_URL is required when SOS_NOTIFY_TRANSPORT=http")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

// getEnvDuration 支持 "20s" 这类格式，也支持纯数字（按秒）
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
