// Package main provides the main entry point for the presence service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/callwatch/presenced/app/bus"
	"github.com/callwatch/presenced/app/federation"
	"github.com/callwatch/presenced/app/handlers"
	"github.com/callwatch/presenced/app/initiator"
	"github.com/callwatch/presenced/app/router"
	"github.com/callwatch/presenced/app/services"
	businessflow "github.com/callwatch/presenced/business_flow"
	"github.com/callwatch/presenced/config"
	"github.com/callwatch/presenced/repository"
)

// Application holds the wired components and their stop functions
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	logger    *zap.Logger
	publisher *bus.Publisher
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, logLevel, baseLevel, err := initializeLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := initializeApplication(rootCtx, cfg, logger, logLevel, baseLevel)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-sigChan
	logger.Info("shutting down")
	cancel()

	for _, fn := range app.stopFuncs {
		fn()
	}
	app.publisher.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("error during shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

// initializeLogger builds the process logger with a runtime-adjustable level
func initializeLogger(cfg config.LoggingConfig) (*zap.Logger, zap.AtomicLevel, zapcore.Level, error) {
	baseLevel, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, 0, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	logLevel := zap.NewAtomicLevelAt(baseLevel)
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = logLevel
	zapCfg.EncoderConfig.TimeKey = "time"
	zapCfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, 0, err
	}
	return logger, logLevel, baseLevel, nil
}

// initializeDatabase opens the database connection with pooling configured
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// initializeCache connects to redis when the cache is enabled, nil otherwise
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rc, nil
}

// startCacheHealthMonitor pings redis on an interval so connectivity loss
// shows up in the logs before a cache read fails. The returned cancel
// function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, logger *zap.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn("redis healthcheck failed", zap.Error(err))
				}
				c()
			}
		}
	}()
	return cancel
}

func initializeApplication(ctx context.Context, cfg *config.ProductionConfig, logger *zap.Logger, logLevel zap.AtomicLevel, baseLevel zapcore.Level) (*Application, error) {
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	cache, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	status := businessflow.NewStatusAggregator()

	// Repositories
	tenantRepo := repository.NewTenantRepository(db)
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	lineRepo := repository.NewLineRepository(db)
	endpointRepo := repository.NewEndpointRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	txManager := repository.NewTransactionManager(db)

	// Collaborator clients
	authClient := services.NewAuthClient(&cfg.Auth, cfg.Initiator.PageSize)
	confdClient := services.NewConfdClient(&cfg.Confd, cfg.Initiator.PageSize)
	amidClient := services.NewAmidClient(&cfg.Amid)
	graphClient := services.NewGraphClient(&cfg.Graph)

	// Bus publisher doubles as the presence notifier
	publisher := bus.NewPublisher(&cfg.Bus, cache, cfg.Cache.RedisPrefix, logger)

	presenceFlow := businessflow.NewPresenceFlow(
		userRepo, txManager, publisher, status,
		cache, cfg.Cache.RedisPrefix, cfg.Cache.DefaultTTL, logger)

	fed := federation.NewFederation(
		&cfg.Teams, authClient, confdClient, graphClient,
		userRepo, txManager, publisher, logger)

	boot := initiator.NewInitiator(
		authClient, confdClient, amidClient, status,
		tenantRepo, userRepo, sessionRepo, refreshTokenRepo,
		lineRepo, endpointRepo, channelRepo, txManager, logger)
	loop := initiator.NewLoop(boot, status, logger)

	var teamsBridge bus.TeamsBridge
	if cfg.Teams.Enabled {
		teamsBridge = fed
	}
	eventHandler := bus.NewEventHandler(
		tenantRepo, userRepo, lineRepo, endpointRepo, channelRepo,
		txManager, publisher, teamsBridge, loop, logger)

	consumer := bus.NewConsumer(&cfg.Bus, status, logger)
	eventHandler.RegisterAll(consumer)

	// HTTP plane
	presenceHandler := handlers.NewPresenceHandler(presenceFlow, logger)
	teamsHandler := handlers.NewTeamsHandler(fed, logger)
	statusHandler := handlers.NewStatusHandler(status)
	configHandler := handlers.NewConfigHandler(cfg, status, logLevel, baseLevel)

	r := router.NewFiberRouter(&cfg.Server, presenceHandler, teamsHandler, statusHandler, configHandler, logger)

	app := &Application{
		router:    r,
		config:    cfg,
		logger:    logger,
		publisher: publisher,
	}

	// Background planes
	app.stopFuncs = append(app.stopFuncs, loop.Start(ctx))
	app.stopFuncs = append(app.stopFuncs, consumer.Start(ctx))
	if cfg.Teams.Enabled {
		app.stopFuncs = append(app.stopFuncs, fed.Start(ctx))
	}
	if cache != nil {
		app.stopFuncs = append(app.stopFuncs, startCacheHealthMonitor(ctx, cache, cfg.Cache.PingEvery, logger))
	}

	return app, nil
}
