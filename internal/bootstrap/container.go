package bootstrap

import (
	"context"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"arena/internal/adapters/adjudicator"
	chclient "arena/internal/adapters/clickhouse"
	"arena/internal/adapters/config"
	"arena/internal/adapters/errors/noop"
	"arena/internal/adapters/errors/sentry"
	"arena/internal/adapters/kafka"
	"arena/internal/adapters/markfeed"
	pgclient "arena/internal/adapters/postgres"
	redisclient "arena/internal/adapters/redis"
	"arena/internal/api"
	"arena/internal/api/health"
	"arena/internal/consumers"
	"arena/internal/domain/fight"
	"arena/internal/domain/trade"
	"arena/internal/events"
	"arena/internal/metrics"
	chrepo "arena/internal/repository/clickhouse"
	pgrepo "arena/internal/repository/postgres"
	redisrepo "arena/internal/repository/redis"
	fightsvc "arena/internal/services/fight"
	"arena/internal/services/settlement"
	"arena/internal/workers"
	"arena/pkg/errors"
	"arena/pkg/logger"
)

// version is stamped at build time via -ldflags
var version = "dev"

// Container holds all application dependencies and their lifecycle.
// Components are organized in initialization order.
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (Data stores)
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	// Domain Layer - Repositories
	Repos *Repositories

	// Domain Layer - Services
	Services *Services

	// External Adapters
	Adapters *Adapters

	// Application Layer
	Application *Application

	// Background Processing
	Background *Background

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups all data access components
type Repositories struct {
	Fights       fight.Repository
	Participants fight.ParticipantRepository
	Trades       trade.Repository

	// Mark price cache backing unrealized PnL at settlement
	MarkPrices *redisrepo.MarkPriceCache

	// Settlement audit trail (ClickHouse, batched, best-effort)
	SettlementAudit *chrepo.SettlementAuditRepository
}

// Services groups the business logic components
type Services struct {
	Fight       *fightsvc.Service
	Lease       *settlement.Lease
	Coordinator *settlement.Coordinator
	Timers      *settlement.TimerRegistry
}

// Adapters groups all external adapters
type Adapters struct {
	KafkaProducer *kafka.Producer
	FillConsumer  *kafka.Consumer

	Adjudicator adjudicator.Client
	MarkFeed    *markfeed.Stream

	Publisher *events.Publisher
}

// Application groups application layer components
type Application struct {
	HTTPServer    *api.Server
	HealthHandler *health.Handler
}

// Background groups all background processing components
type Background struct {
	WorkerScheduler *workers.Scheduler

	// Fill ingestion into the trade ledger
	FillSvc *consumers.FillConsumer
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Services:    &Services{},
		Adapters:    &Adapters{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order.
// Panics on any initialization error (fail-fast at startup).
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitApplication()
	c.MustInitBackground()
}

// MustInitConfig loads configuration, logging and error tracking
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	c.Log = logger.Get()

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	metrics.Init()
}

// MustInitInfrastructure connects the data stores
func (c *Container) MustInitInfrastructure() {
	c.Log.Info("Initializing infrastructure...")

	pg, err := pgclient.NewClient(c.Config.Postgres)
	if err != nil {
		panic("failed to connect to PostgreSQL: " + err.Error())
	}
	c.PG = pg

	redisClient, err := redisclient.NewClient(c.Config.Redis)
	if err != nil {
		panic("failed to connect to Redis: " + err.Error())
	}
	c.Redis = redisClient

	// ClickHouse is the audit trail only; the engine settles without it
	if c.Config.ClickHouse.Host != "" {
		ch, err := chclient.NewClient(c.Config.ClickHouse)
		if err != nil {
			c.Log.Warnf("ClickHouse unavailable, settlement audit disabled: %v", err)
		} else {
			c.CH = ch
		}
	}

	c.Log.Info("✓ Infrastructure initialized")
}

// MustInitRepositories wires the data access layer
func (c *Container) MustInitRepositories() {
	c.Log.Info("Initializing repositories...")

	db := c.PG.DB()
	c.Repos.Fights = pgrepo.NewFightRepository(db)
	c.Repos.Participants = pgrepo.NewParticipantRepository(db)
	c.Repos.Trades = pgrepo.NewTradeRepository(db)

	c.Repos.MarkPrices = redisrepo.NewMarkPriceCache(c.Redis.Client(), c.Config.MarkFeed.PriceTTL)

	if c.CH != nil {
		c.Repos.SettlementAudit = chrepo.NewSettlementAuditRepository(c.CH.Conn())
	}

	c.Log.Info("✓ Repositories initialized")
}

// MustInitAdapters wires Kafka, the adjudicator client and the mark feed
func (c *Container) MustInitAdapters() {
	c.Log.Info("Initializing adapters...")

	c.Adapters.KafkaProducer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers: c.Config.Kafka.Brokers,
	})
	c.Adapters.Publisher = events.NewPublisher(c.Adapters.KafkaProducer, c.Log)

	c.Adapters.FillConsumer = kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: c.Config.Kafka.Brokers,
		GroupID: c.Config.Kafka.GroupID,
		Topic:   kafka.TopicFightTrades,
	})

	c.Adapters.Adjudicator = adjudicator.NewClient(adjudicator.Config{
		BaseURL:        c.Config.Adjudicator.BaseURL,
		RequestTimeout: c.Config.Adjudicator.RequestTimeout,
		RatePerSecond:  c.Config.Adjudicator.RatePerSecond,
		RateBurst:      c.Config.Adjudicator.RateBurst,
	})

	if c.Config.MarkFeed.Enabled && c.Config.MarkFeed.URL != "" {
		c.Adapters.MarkFeed = markfeed.NewStream(c.Config.MarkFeed.URL, c.Repos.MarkPrices)
	} else {
		c.Log.Warn("Mark feed disabled, open positions settle at entry prices")
	}

	c.Log.Info("✓ Adapters initialized")
}

// MustInitServices wires the settlement engine and the fight lifecycle
func (c *Container) MustInitServices() {
	c.Log.Info("Initializing services...")

	c.Services.Lease = settlement.NewLease(
		c.Repos.Fights,
		settlement.DefaultHolder(),
		c.Config.Settlement.LockTimeout,
	)

	coordinator := settlement.NewCoordinator(
		c.Repos.Fights,
		c.Repos.Participants,
		c.Repos.Trades,
		c.Repos.MarkPrices,
		c.Adapters.Adjudicator,
		c.Services.Lease,
		c.Config.Settlement.SettleBuffer,
		c.Log.With("component", "settlement"),
	)
	coordinator.WithPublisher(c.Adapters.Publisher)
	if c.Repos.SettlementAudit != nil {
		coordinator.WithAudit(c.Repos.SettlementAudit)
	}
	c.Services.Coordinator = coordinator

	c.Services.Timers = settlement.NewTimerRegistry(
		coordinator,
		c.Repos.Fights,
		c.Config.Settlement.SettleBuffer,
		c.Log.With("component", "settlement_timers"),
	)

	c.Services.Fight = fightsvc.NewService(
		c.Repos.Fights,
		c.Repos.Participants,
		c.Log.With("component", "fight"),
	).
		WithTimers(c.Services.Timers).
		WithPublisher(c.Adapters.Publisher)

	c.Log.Infow("✓ Services initialized", "lease_holder", c.Services.Lease.Holder())
}

// MustInitApplication wires the operational HTTP surface
func (c *Container) MustInitApplication() {
	c.Log.Info("Initializing application layer...")

	var chConn driver.Conn
	if c.CH != nil {
		chConn = c.CH.Conn()
	}

	c.Application.HealthHandler = health.New(
		c.Log.With("component", "health"),
		c.PG.DB(),
		chConn,
		c.Redis.Client(),
		c.Config.App.Name,
		version,
	)

	c.Application.HTTPServer = api.NewServer(
		api.ServerConfig{
			Port:        c.Config.API.Port,
			ServiceName: c.Config.App.Name,
			Version:     version,
		},
		c.Application.HealthHandler,
		c.Log.With("component", "http"),
	)

	c.Log.Info("✓ Application layer initialized")
}

// MustInitBackground wires workers and event consumers
func (c *Container) MustInitBackground() {
	c.Log.Info("Initializing background processing...")

	c.Background.WorkerScheduler = provideWorkers(
		c.Services.Coordinator,
		c.Config,
		c.Log,
	)

	c.Background.FillSvc = consumers.NewFillConsumer(
		c.Adapters.FillConsumer,
		c.Repos.Fights,
		c.Repos.Participants,
		c.Repos.Trades,
		c.Log.With("component", "fill_consumer"),
	)

	c.Log.Info("✓ Background processing initialized")
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	// Audit batch writer first, everything downstream may feed it
	if c.Repos.SettlementAudit != nil {
		c.Repos.SettlementAudit.Start(c.Context)
	}

	// Mark feed keeps the price cache warm for unrealized PnL
	if c.Adapters.MarkFeed != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			c.Adapters.MarkFeed.Run(c.Context)
		}()
	}

	// Re-arm settlement timers for fights that went live before boot
	if err := c.Services.Timers.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start settlement timers")
	}

	// Fill consumer feeds the trade ledger
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Background.FillSvc.Start(c.Context); err != nil && c.Context.Err() == nil {
			c.Log.Errorf("Fill consumer failed: %v", err)
		}
	}()

	// Reconciliation sweep, the settlement backstop
	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	// HTTP server last: only report ready once everything else runs
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	// Cancel application context to signal all components to stop
	c.Cancel()

	c.Lifecycle.Shutdown(
		c.WG,
		c.Application.HTTPServer,
		c.Background.WorkerScheduler,
		c.Services.Timers,
		c.Adapters.FillConsumer,
		c.Adapters.KafkaProducer,
		c.Repos.SettlementAudit,
		c.PG,
		c.CH,
		c.Redis,
		c.ErrorTracker,
		c.Log,
	)
}

// provideErrorTracker selects the error tracking backend
func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}
