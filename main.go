package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seatsurge/booking-core/internal/di"
	"github.com/seatsurge/booking-core/internal/metrics"
	"github.com/seatsurge/booking-core/internal/repository"
	"github.com/seatsurge/booking-core/internal/service"
	"github.com/seatsurge/booking-core/internal/worker"
	"github.com/seatsurge/booking-core/pkg/config"
	"github.com/seatsurge/booking-core/pkg/database"
	"github.com/seatsurge/booking-core/pkg/kafka"
	"github.com/seatsurge/booking-core/pkg/logger"
	"github.com/seatsurge/booking-core/pkg/middleware"
	pkgredis "github.com/seatsurge/booking-core/pkg/redis"
	"github.com/seatsurge/booking-core/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logLevel := "info"
	if cfg.App.Debug {
		logLevel = "debug"
	}
	if err := logger.Init(&logger.Config{
		Level:       logLevel,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("starting booking core", "version", cfg.App.Version, "environment", cfg.App.Environment)

	ctx := context.Background()

	tel, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	})
	if err != nil {
		appLog.Fatal("failed to initialize telemetry", "error", err)
	}
	if err := metrics.Init(); err != nil {
		appLog.Fatal("failed to initialize metrics", "error", err)
	}

	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal("database connection failed", "error", err)
	}
	defer db.Close()
	appLog.Info("database connected", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)

	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: time.Second,
	})
	if err != nil {
		appLog.Fatal("redis connection failed", "error", err)
	}
	defer redisClient.Close()
	appLog.Info("redis connected", "addr", cfg.Redis.Addr(), "db", cfg.Redis.DB)

	publisher, err := service.NewKafkaEventPublisher(ctx, &service.KafkaEventPublisherConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID,
		Topics:   cfg.Kafka.Topics,
		Source:   cfg.App.Name,
	})
	if err != nil {
		appLog.Fatal("kafka producer connection failed", "error", err)
	}
	defer publisher.Close()
	appLog.Info("kafka producer connected", "brokers", cfg.Kafka.Brokers)

	container := di.NewContainer(&di.ContainerConfig{
		Config:         cfg,
		DB:             db,
		Redis:          redisClient,
		EventPublisher: publisher,
	})

	if lockRepo, ok := container.SeatLocks.(*repository.RedisSeatLockRepository); ok {
		if err := lockRepo.LoadScripts(ctx); err != nil {
			appLog.Warn("failed to preload lock scripts, will load lazily", "error", err)
		}
	}

	// Expiry pipeline: keyspace notifications -> event log -> consumer
	if err := container.ExpirySignaler.Start(ctx); err != nil {
		appLog.Fatal("failed to start expiry signaler", "error", err)
	}
	defer container.ExpirySignaler.Stop()

	consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:  cfg.Kafka.Brokers,
		GroupID:  cfg.Kafka.ConsumerGroup,
		Topics:   []string{cfg.Kafka.Topics.SeatStateTransitions},
		ClientID: cfg.Kafka.ClientID + "-seat-state",
	})
	if err != nil {
		appLog.Fatal("kafka consumer connection failed", "error", err)
	}
	container.SeatStateConsumer = worker.NewSeatStateConsumer(&worker.SeatStateConsumerConfig{
		Consumer:  consumer,
		Seats:     container.SeatRepo,
		Holds:     container.HoldRepo,
		Overlay:   container.Overlay,
		Publisher: container.EventPublisher,
		TxRunner:  container.TxManager,
	})
	if err := container.SeatStateConsumer.Start(ctx); err != nil {
		appLog.Fatal("failed to start seat state consumer", "error", err)
	}
	defer container.SeatStateConsumer.Stop()

	if cfg.Hold.ReconcilerEnabled {
		if err := container.Reconciler.Start(ctx); err != nil {
			appLog.Fatal("failed to start reconciler", "error", err)
		}
		defer container.Reconciler.Stop()
	} else {
		appLog.Warn("reconciler disabled; lost expiry notifications will not be recovered")
	}

	router := buildRouter(cfg, container)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLog.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http server shutdown failed", "error", err)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		appLog.Error("telemetry shutdown failed", "error", err)
	}
}

func buildRouter(cfg *config.Config, c *di.Container) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware())
	router.Use(requestTimeout(cfg.Server.RequestTimeout))

	router.GET("/health", c.HealthHandler.Health)

	api := router.Group("/api")
	api.Use(middleware.CustomerAuth(&middleware.AuthConfig{
		Enabled: cfg.Auth.Enabled,
		Secret:  cfg.Auth.Secret,
		Issuer:  cfg.Auth.Issuer,
	}))

	bookings := api.Group("/bookings")
	{
		bookings.POST("/hold", c.BookingHandler.PlaceHold)
		bookings.POST("/:token/confirm", c.BookingHandler.ConfirmBooking)
		bookings.DELETE("/hold/:token", c.BookingHandler.CancelHold)
		bookings.GET("/hold/:token", c.BookingHandler.GetSeatHold)
		bookings.GET("/:token", c.BookingHandler.GetBooking)
	}

	api.GET("/events/:id/seats", c.SeatViewHandler.GetEventSeats)

	return router
}

// requestTimeout bounds every request context with the configured deadline
func requestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
