// cmd/inventory-service/main.go
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"qcom/internal/pkg/bootstrap"
	pkgredis "qcom/internal/pkg/redis"
	"qcom/internal/pkg/zookeeper"
	"qcom/internal/service/inventory/application"
	"qcom/internal/service/inventory/domain"
	"qcom/internal/service/inventory/infrastructure"
	"qcom/internal/service/inventory/infrastructure/rule"
	"qcom/internal/service/inventory/interfaces"
)

const (
	serviceName   = "inventory-service"
	servicePort   = 8084
	consumerGroup = "inventory-service-group"
)

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()
	logger := log.With().Str("service", serviceName).Logger()

	// --- 存储 ---
	db, err := gorm.Open(mysql.Open(cfg.Infra.MySQL.DSN), &gorm.Config{})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	if err := db.AutoMigrate(
		&infrastructure.StockModel{},
		&infrastructure.ReservationModel{},
		&infrastructure.WarehouseModel{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate schema")
	}

	redisClient, err := pkgredis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// --- 事件发布 ---
	kafkaPublisher := infrastructure.NewKafkaEventPublisher(cfg.Infra.Kafka.Brokers, serviceName, logger)
	feedHub := interfaces.NewStockFeedHub(logger)
	publisher := infrastructure.NewCompositeEventPublisher(logger, kafkaPublisher, feedHub)

	// --- 仓储 ---
	stockRepo := infrastructure.NewGormStockRepository(db)
	reservationRepo := infrastructure.NewGormReservationRepository(db)
	warehouseRepo := domain.WarehouseRepository(infrastructure.NewGormWarehouseRepository(db))
	if cfg.Inventory.WarehouseCacheSeconds > 0 {
		warehouseRepo = infrastructure.NewCachedWarehouseRepository(
			warehouseRepo, redisClient,
			time.Duration(cfg.Inventory.WarehouseCacheSeconds)*time.Second, logger)
	}

	// --- 应用服务 ---
	tracer := otel.Tracer(serviceName)
	ledger := application.NewStockLedger(stockRepo, publisher, tracer, logger)
	lifecycle := application.NewReservationLifecycle(ledger, reservationRepo, publisher, tracer, logger)

	eligibility, err := rule.NewCELEligibilityAdapter(cfg.Inventory.EligibilityRule)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid eligibility rule")
	}

	availability := func(ctx context.Context, warehouseID, skuID string) (int, error) {
		record, err := ledger.GetAvailability(ctx, warehouseID, skuID)
		if err != nil {
			return 0, err
		}
		return record.Available(), nil
	}

	orchestrator := application.NewAllocationOrchestrator(
		warehouseRepo, availability, lifecycle, eligibility,
		application.OrchestratorConfig{
			ReservationTTL: time.Duration(cfg.Inventory.ReservationTTLMinutes) * time.Minute,
			MaxAttempts:    cfg.Inventory.AllocationMaxAttempts,
			Pricing: domain.PricingConfig{
				BaseFee:  cfg.Inventory.BaseDeliveryFee,
				PerKmFee: cfg.Inventory.PerKmFee,
				BaseKm:   cfg.Inventory.BaseKm,
			},
		},
		tracer, logger,
	)

	// --- 过期清理，多实例部署时通过 ZooKeeper 选主 ---
	var sweepLocker application.Locker = application.NopLocker{}
	var zkConn *zookeeper.Conn
	if cfg.Infra.Zookeeper.Enabled {
		zkConn, err = zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 10*time.Second)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		sweepLocker, err = zookeeper.NewDistributedLock(zkConn, "reservation-sweep")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create sweep lock")
		}
	}
	sweeper := application.NewExpirySweeper(
		lifecycle, reservationRepo, sweepLocker,
		time.Duration(cfg.Inventory.SweepIntervalMinutes)*time.Minute, logger)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go sweeper.Run(sweepCtx)

	// --- 入站适配器 ---
	consumer := interfaces.NewPaymentConsumerAdapter(cfg.Infra.Kafka.Brokers, consumerGroup, orchestrator, logger)
	consumer.Start(context.Background())

	handler := interfaces.NewInventoryHandler(orchestrator, lifecycle, ledger, feedHub, cfg.Inventory.DefaultFreeRadiusKm)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		},
		OnShutdown: func(ctx context.Context) {
			consumer.Stop()
			stopSweeper()
			feedHub.Close()
			if err := kafkaPublisher.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing kafka publisher")
			}
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis client")
			}
			if zkConn != nil {
				zkConn.Close()
			}
		},
	})
}
