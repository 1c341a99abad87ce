package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-sos/internal/config"
	"wisefido-sos/internal/contacts"
	"wisefido-sos/internal/database"
	"wisefido-sos/internal/emergency"
	"wisefido-sos/internal/history"
	"wisefido-sos/internal/httpapi"
	"wisefido-sos/internal/ledger"
	"wisefido-sos/internal/location"
	"wisefido-sos/internal/metrics"
	"wisefido-sos/internal/mqtt"
	"wisefido-sos/internal/notify"
	"wisefido-sos/internal/repository"
	"wisefido-sos/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// SOSService 紧急告警服务（整合各层）
type SOSService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	metrics      *metrics.Metrics
	platform     *location.MQTTPlatform
	provider     *location.Provider
	ledger       *ledger.Client
	orchestrator *emergency.Orchestrator
	server       *Server
}

// NewSOSService 创建服务并连接外部依赖
func NewSOSService(cfg *config.Config, logger *zap.Logger) (*SOSService, error) {
	ctx := context.Background()
	m := metrics.New()

	// 1. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 2. 可选：PostgreSQL 历史镜像
	var db *sql.DB
	var historyRepo *repository.AlertHistoryRepository
	if cfg.SOS.History.MirrorToPostgres {
		d, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		db = d
		historyRepo = repository.NewAlertHistoryRepository(db, logger)
		if err := historyRepo.EnsureSchema(ctx); err != nil {
			db.Close()
			redisClient.Close()
			return nil, err
		}
		logger.Info("Alert history mirror enabled")
	}

	// 3. 连接 MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		if db != nil {
			db.Close()
		}
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect mqtt: %w", err)
	}

	prefix := cfg.SOS.Location.TopicPrefix
	deviceID := cfg.SOS.Location.DeviceID

	// 4. 存储与联系人
	storage := store.NewStorage(store.NewRedisKV(redisClient), cfg.SOS.KeyPrefix, logger)
	directory := contacts.NewDirectory(storage, contacts.Options{
		CountryCode: cfg.SOS.Contacts.DefaultCountryCode,
		NameMin:     cfg.SOS.Contacts.NameMinLength,
		NameMax:     cfg.SOS.Contacts.NameMaxLength,
		MaxContacts: cfg.SOS.Contacts.MaxContacts,
	}, logger)

	// 5. 定位
	platform := location.NewMQTTPlatform(mqttClient, prefix, deviceID, logger)
	provider := location.NewProvider(platform, location.Options{
		EnableHighAccuracy: cfg.SOS.Location.EnableHighAccuracy,
		Timeout:            cfg.SOS.Location.Timeout,
		MaxAge:             cfg.SOS.Location.MaxAge,
		DistanceFilter:     cfg.SOS.Location.DistanceFilter,
		Interval:           cfg.SOS.Location.Interval,
		FastestInterval:    cfg.SOS.Location.FastestInterval,
	}, m, logger)

	// 6. 通知
	var launcher notify.Launcher
	switch cfg.SOS.Notify.Transport {
	case "http":
		launcher = notify.NewHTTPLauncher(cfg.SOS.Notify.GatewayURL, cfg.SOS.Notify.DeliveryTimeout, logger)
	default:
		launcher = notify.NewMQTTLauncher(mqttClient, prefix, deviceID, logger)
	}
	channel := notify.NewDeepLinkChannel(cfg.SOS.Notify.MessagingHost, launcher)
	dispatcher := notify.NewDispatcher(directory, channel, notify.Options{
		Pacing:          cfg.SOS.Notify.Pacing,
		DeliveryTimeout: cfg.SOS.Notify.DeliveryTimeout,
	}, m, logger)
	messages, err := notify.NewMessageBuilder(cfg.SOS.Message.Timezone)
	if err != nil {
		mqttClient.Disconnect()
		if db != nil {
			db.Close()
		}
		redisClient.Close()
		return nil, err
	}

	// 7. 账本（未配置 RPC 时不上链）
	var ledgerClient *ledger.Client
	if cfg.SOS.Ledger.RPCURL != "" {
		backend, err := ledger.NewEthBackend(cfg.SOS.Ledger.RPCURL, cfg.SOS.Ledger.ContractAddress, cfg.SOS.Ledger.GasLimit, logger)
		if err != nil {
			logger.Warn("Ledger disabled", zap.Error(err))
		} else {
			ledgerClient = ledger.NewClient(backend, ledger.Options{
				DefaultCredential: cfg.SOS.Ledger.PrivateKey,
				MinBalanceEth:     cfg.SOS.Ledger.MinBalanceEth,
				ExplorerTxURL:     cfg.SOS.Ledger.ExplorerTxURL,
				SubmitTimeout:     cfg.SOS.Ledger.SubmitTimeout,
			}, m, logger)
		}
	}

	// 8. 历史记录
	var mirror history.Mirror
	var historyQuery httpapi.HistoryQuery
	if historyRepo != nil {
		mirror = historyRepo
		historyQuery = historyRepo
	}
	historyStore := history.NewStore(storage, mirror, history.NewStreamPublisher(redisClient, cfg.SOS.History.Stream), logger)

	// 9. 编排器
	deps := emergency.Deps{
		Contacts: directory,
		Location: provider,
		Notifier: dispatcher,
		History:  historyStore,
		Messages: messages,
	}
	var ledgerSvc httpapi.LedgerService
	if ledgerClient != nil {
		deps.Ledger = ledgerClient
		ledgerSvc = ledgerClient
	}
	orchestrator := emergency.NewOrchestrator(deps, m, logger)
	orchestrator.OnProgress(statusPublisher(mqttClient, fmt.Sprintf("%s/%s/emergency/status", prefix, deviceID), cfg.MQTT.QoS, logger))

	// 10. HTTP
	router := httpapi.NewRouter(m, logger)
	router.RegisterHealthRoutes()
	router.RegisterContactRoutes(httpapi.NewContactsHandler(directory, dispatcher, logger))
	router.RegisterEmergencyRoutes(httpapi.NewEmergencyHandler(orchestrator, provider, storage, cfg.SOS.Ledger.PrivateKey, logger))
	router.RegisterHistoryRoutes(httpapi.NewHistoryHandler(historyStore, historyQuery, logger))
	router.RegisterLedgerRoutes(httpapi.NewLedgerHandler(ledgerSvc, logger))
	router.RegisterProfileRoutes(httpapi.NewProfileHandler(storage, logger))

	return &SOSService{
		config:       cfg,
		db:           db,
		redisClient:  redisClient,
		mqttClient:   mqttClient,
		logger:       logger,
		metrics:      m,
		platform:     platform,
		provider:     provider,
		ledger:       ledgerClient,
		orchestrator: orchestrator,
		server:       NewServer(cfg.HTTP.Addr, router, logger),
	}, nil
}

// statusPublisher 把每次状态变化以 retained 消息发布给设备端
func statusPublisher(pub mqtt.Publisher, topic string, qos byte, logger *zap.Logger) func(emergency.Snapshot) {
	return func(snap emergency.Snapshot) {
		logger.Debug("Emergency progress",
			zap.String("step", string(snap.Step)),
			zap.Int("progress", snap.Progress),
		)
		payload, err := json.Marshal(snap)
		if err != nil {
			logger.Error("Failed to marshal emergency status", zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := pub.Publish(ctx, topic, qos, true, payload); err != nil {
			logger.Warn("Failed to publish emergency status", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// Start 订阅设备主题并提供 HTTP 服务，直到 ctx 取消或服务器出错
func (s *SOSService) Start(ctx context.Context) error {
	s.logger.Info("Starting SOS service",
		zap.String("device_id", s.config.SOS.Location.DeviceID),
		zap.String("notify_transport", s.config.SOS.Notify.Transport),
		zap.Bool("ledger_enabled", s.ledger != nil),
	)

	if err := s.platform.Start(); err != nil {
		return fmt.Errorf("failed to start location platform: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Start()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server stopped: %w", err)
		}
		return nil
	}
}

// Stop 停止服务
func (s *SOSService) Stop() error {
	s.logger.Info("Stopping SOS service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Stop(shutdownCtx); err != nil {
		s.logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	s.orchestrator.Cancel()
	s.provider.Cleanup()
	s.platform.Stop()
	if s.ledger != nil {
		s.ledger.Cleanup()
	}
	s.mqttClient.Disconnect()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}
	return nil
}
