package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"topicchat/backend/internal/api/handler"
	"topicchat/backend/internal/chathub"
	"topicchat/backend/internal/complaint"
	"topicchat/backend/internal/config"
	"topicchat/backend/internal/localization"
	"topicchat/backend/internal/logger"
	"topicchat/backend/internal/randomchat"
	"topicchat/backend/internal/storage"
	"topicchat/backend/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var version = "dev"

// openStorage підключає PostgreSQL або in-memory сховище для розробки.
func openStorage(cfg config.DatabaseConfig, log *zap.Logger) (storage.Storage, error) {
	if cfg.Driver == "memory" {
		log.Warn("Using in-memory storage, data is lost on restart")
		return storage.NewMemoryStore(), nil
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := storage.AutoMigrate(db); err != nil {
			return nil, err
		}
	}
	log.Info("Database connection established", zap.Bool("auto_migrate", cfg.AutoMigrate))
	return storage.NewStorageService(db, log.Named("storage")), nil
}

// openBroker returns nil when Redis fan-out is disabled.
func openBroker(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (chathub.Broker, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, nil, err
	}
	log.Info("Redis connection established", zap.String("addr", cfg.Addr), zap.String("channel", cfg.Channel))
	return chathub.NewRedisBroker(rdb, cfg.Channel, log), func() { rdb.Close() }, nil
}

func main() {
	configPath := flag.String("config", os.Getenv("TOPICCHAT_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()
	zlog.Info("Starting TopicChat backend", zap.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Ініціалізація залежностей
	meter, shutdownMetrics, err := telemetry.InitMetrics(ctx, cfg.Telemetry, version)
	if err != nil {
		zlog.Fatal("Failed to init metrics", zap.Error(err))
	}
	metrics, err := randomchat.NewMetrics(meter)
	if err != nil {
		zlog.Fatal("Failed to register metrics", zap.Error(err))
	}

	store, err := openStorage(cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("Failed to open storage", zap.Error(err))
	}
	broker, closeBroker, err := openBroker(ctx, cfg.Redis, zlog)
	if err != nil {
		zlog.Fatal("Failed to connect Redis", zap.Error(err))
	}
	defer closeBroker()

	texts, err := localization.Default()
	if err != nil {
		zlog.Fatal("Failed to load localization", zap.Error(err))
	}

	// 2. Chat Hub та сервіси
	hub := chathub.NewManagerService(broker, zlog)
	go hub.Run(ctx)

	chat := randomchat.NewService(randomchat.Deps{
		Store:    store,
		Notifier: hub,
		Reporter: complaint.NewService(store, zlog),
		Texts:    texts,
		Metrics:  metrics,
		Log:      zlog.Named("random_chat"),
		Settings: randomchat.Settings{
			StaleAfter:     cfg.Matching.StaleAfter,
			FallbackAfter:  cfg.Matching.FallbackAfter,
			SettleAttempts: cfg.Matching.SettleAttempts,
			TranscriptSize: config.ReportTranscriptSize,
			Locale:         cfg.Locale,
		},
	})

	// 3. Gin та роутинг
	gin.SetMode(gin.ReleaseMode)
	h := handler.NewHandler(hub, chat, cfg.Auth, cfg.Server.AllowedOrigins, zlog)

	server := &http.Server{
		Addr:           cfg.Server.Addr,
		Handler:        h.Router(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zlog.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		zlog.Error("Metrics shutdown failed", zap.Error(err))
	}
}
