package di

import (
	"github.com/seatsurge/booking-core/internal/handler"
	"github.com/seatsurge/booking-core/internal/repository"
	"github.com/seatsurge/booking-core/internal/service"
	"github.com/seatsurge/booking-core/internal/worker"
	"github.com/seatsurge/booking-core/pkg/config"
	"github.com/seatsurge/booking-core/pkg/database"
	pkgredis "github.com/seatsurge/booking-core/pkg/redis"
)

// Container wires the booking core's dependencies together
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *pkgredis.Client

	// Repositories
	EventRepo   repository.EventRepository
	SeatRepo    repository.SeatRepository
	HoldRepo    repository.HoldRepository
	BookingRepo repository.BookingRepository
	SeatLocks   repository.SeatLockRepository
	Overlay     repository.SeatStatusRepository
	TxManager   *repository.TxManager

	// Publishers
	EventPublisher service.EventPublisher

	// Services
	HoldService     service.HoldService
	SeatViewService service.SeatViewService

	// Workers
	ExpirySignaler    *worker.ExpirySignaler
	SeatStateConsumer *worker.SeatStateConsumer
	Reconciler        *worker.Reconciler

	// Handlers
	HealthHandler   *handler.HealthHandler
	BookingHandler  *handler.BookingHandler
	SeatViewHandler *handler.SeatViewHandler
}

// ContainerConfig contains the pieces built in main before wiring
type ContainerConfig struct {
	Config         *config.Config
	DB             *database.PostgresDB
	Redis          *pkgredis.Client
	EventPublisher service.EventPublisher
}

// NewContainer builds repositories, services and handlers. Workers are
// attached separately because the consumer needs a broker connection that
// may be disabled in some runs.
func NewContainer(cfg *ContainerConfig) *Container {
	pool := cfg.DB.Pool()
	holdCfg := cfg.Config.Hold

	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		EventPublisher: cfg.EventPublisher,
	}

	c.EventRepo = repository.NewPostgresEventRepository(pool)
	c.SeatRepo = repository.NewPostgresSeatRepository(pool)
	c.HoldRepo = repository.NewPostgresHoldRepository(pool)
	c.BookingRepo = repository.NewPostgresBookingRepository(pool)
	c.SeatLocks = repository.NewRedisSeatLockRepository(cfg.Redis)
	c.Overlay = repository.NewRedisSeatStatusRepository(cfg.Redis, holdCfg.OverlayTTL)
	c.TxManager = repository.NewTxManager(pool, cfg.Config.Database.TxTimeout)

	c.HoldService = service.NewHoldService(
		c.EventRepo,
		c.SeatRepo,
		c.HoldRepo,
		c.BookingRepo,
		c.SeatLocks,
		c.Overlay,
		c.EventPublisher,
		c.TxManager,
		&service.HoldServiceConfig{
			HoldDuration:    holdCfg.Duration(),
			MaxSeatsPerHold: holdCfg.MaxSeatsPerHold,
		},
	)
	c.SeatViewService = service.NewSeatViewService(c.EventRepo, c.SeatRepo, c.Overlay)

	c.ExpirySignaler = worker.NewExpirySignaler(cfg.Redis, c.EventPublisher)
	c.Reconciler = worker.NewReconciler(&worker.ReconcilerDeps{
		Holds:     c.HoldRepo,
		Seats:     c.SeatRepo,
		Locks:     c.SeatLocks,
		Overlay:   c.Overlay,
		Publisher: c.EventPublisher,
		TxRunner:  c.TxManager,
	}, &worker.ReconcilerConfig{Interval: holdCfg.ReconcilerInterval})

	c.HealthHandler = handler.NewHealthHandler(cfg.DB, cfg.Redis)
	c.BookingHandler = handler.NewBookingHandler(c.HoldService)
	c.SeatViewHandler = handler.NewSeatViewHandler(c.SeatViewService)

	return c
}
