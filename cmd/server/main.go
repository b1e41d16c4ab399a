package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/trade-ledger/internal/archive"
	"github.com/trade-ledger/internal/config"
	"github.com/trade-ledger/internal/handler"
	"github.com/trade-ledger/internal/importer"
	"github.com/trade-ledger/internal/middleware"
	"github.com/trade-ledger/internal/repository"
	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/internal/worker"
	"github.com/trade-ledger/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Build info (injected at build time via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		configPath = v
	}

	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Dir: cfg.Log.Dir, Pretty: cfg.Log.Pretty})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to initialize logger")
	}
	logger.SetGlobalLogger(log)

	gin.SetMode(cfg.Server.Mode)

	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	rdb := initRedis(cfg)

	if err := repository.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	threshold, _ := cfg.Ledger.Threshold()

	// Repositories
	tradeRepo := repository.NewTradeRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	importBatchRepo := repository.NewImportBatchRepository(db)

	// Services
	authService := service.NewAuthService(cfg.JWT)
	ledgerService := service.NewLedgerService(tradeRepo, accountRepo, cfg.Ledger.MaxImportRows, log)
	accountService := service.NewAccountService(accountRepo)
	settingsService := service.NewSettingsService(settingsRepo, threshold)
	statsService := service.NewStatsService(tradeRepo, settingsService)
	importService := service.NewImportService(
		ledgerService,
		importBatchRepo,
		importer.DefaultRegistry(),
		service.NewRedisImportResultStore(rdb, cfg.Ledger.ImportResultTTL),
		initArchive(ctx, cfg, log),
		cfg.Ledger.MaxImportRows,
		log,
	)

	recomputeWorker := worker.NewRecomputeWorker(ledgerService, cfg.Ledger.RecomputeSchedule, log)
	if err := recomputeWorker.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start recompute worker")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLoggerMiddleware(log))
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		status := gin.H{
			"status":     "ok",
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
			"time":       time.Now().Unix(),
			"redis":      "ok",
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			status["redis"] = err.Error()
		}
		c.JSON(http.StatusOK, status)
	})

	v1 := router.Group("/api/v1")
	{
		authMiddleware := middleware.AuthMiddleware(authService)

		handler.NewTradeHandler(ledgerService).RegisterRoutes(v1, authMiddleware)
		handler.NewAccountHandler(accountService).RegisterRoutes(v1, authMiddleware)
		handler.NewImportHandler(importService).RegisterRoutes(v1, authMiddleware)
		handler.NewStatsHandler(statsService, settingsService).RegisterRoutes(v1, authMiddleware)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", Version).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	recomputeWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("error closing redis connection")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info().Msg("server exited properly")
}

func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormLogger := gormlogger.Default.LogMode(gormlogger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// initArchive returns the S3 archive, or a no-op when archiving is off or
// the AWS configuration cannot be loaded
func initArchive(ctx context.Context, cfg *config.Config, log zerolog.Logger) service.Archiver {
	if !cfg.Archive.Enabled {
		return archive.Noop{}
	}

	a, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		log.Warn().Err(err).Msg("import archiving disabled")
		return archive.Noop{}
	}
	log.Info().Str("bucket", cfg.Archive.Bucket).Msg("archiving imports to s3")
	return a
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
