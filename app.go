package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Schedule(context.Context) func() error
	Stop(context.Context, context.Context) func() error
}

// App owns the process: the storage backend, the loans and catalog
// services, the overdue notification scheduler and the optional mails
// outbox consumer.
type App struct {
	logger         *zap.Logger
	config         *Config
	catalog        CatalogServiceProvider
	loans          LoanServiceProvider
	scheduler      *OverdueScheduler
	redisClient    *redis.Client
	cleanups       []func()
	queueConsumers []func(context.Context) error
}

// NewApp provides an instance of App.
func NewApp() (AppProvider, error) {
	config, err := LoadAndInitConfigs(GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %s", err)
	}

	// Ensure the logs folder exists and setup the logging module.
	err = os.MkdirAll(config.LogFolder, 0o700)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging folder: %s", err)
	}
	clock := NewTickClock(NewClock(config.IsProduction))
	logsWriter := NewRSyncWriter(config, clock)
	logger, flusher := SetupLogging(config, logsWriter, clock)
	cleanups := []func(){
		func() { _ = flusher() },
		func() {
			if cerr := logsWriter.Close(); cerr != nil {
				fmt.Println("error during closing of log file: ", cerr)
			}
		},
	}

	// Setup the books and loans storage backend.
	var books BookStorage
	var loans LoanStorage
	switch config.Storage.Backend {
	case BackendPostgres:
		db, perr := GetPostgresClient(config)
		if perr != nil {
			return nil, fmt.Errorf("failed to connect to postgres server: %s", perr)
		}
		if perr = CreatePostgresSchema(context.Background(), db); perr != nil {
			return nil, fmt.Errorf("failed to setup postgres schema: %s", perr)
		}
		books = NewPostgresBookStorage(logger, db)
		loans = NewPostgresLoanStorage(logger, db)
		cleanups = append(cleanups, func() { _ = db.Close() })
	default:
		client, berr := GetBoltDBClient(config)
		if berr != nil {
			return nil, fmt.Errorf("failed to open boltdb database: %s", berr)
		}
		books = NewBoltBookStorage(logger, &config.BoltDB, client)
		loans = NewBoltLoanStorage(logger, &config.BoltDB, client)
		cleanups = append(cleanups, func() { _ = client.Close() })
	}

	// Setup the outbound mails transport. The redis transport comes with
	// its outbox consumer which performs the final delivery.
	var transport MailTransport
	var redisClient *redis.Client
	var queueConsumers []func(context.Context) error
	if config.Mail.Transport == TransportRedis {
		redisClient, err = GetRedisClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis server: %s", err)
		}
		queue := NewRedisQueue(redisClient)
		transport = NewRedisOutboxTransport(queue)
		consumer := NewOutboxConsumer(logger, config, queue, NewLogMailTransport(logger))
		queueConsumers = append(queueConsumers, func(ctx context.Context) error {
			return consumer.Consume(ctx, OutboxQueue)
		})
	} else {
		transport = NewLogMailTransport(logger)
	}

	// Setup the services and the overdue notification pipeline.
	catalog := NewCatalogService(logger, config, books)
	loanService := NewLoanService(logger, config, clock, books, loans)
	notifier := NewNotificationDispatcher(logger, config, NewIDsHandler(), transport)
	scheduler := NewOverdueScheduler(logger, config, clock, NewIDsHandler(), loanService, notifier)

	return &App{
		logger:         logger,
		config:         config,
		catalog:        catalog,
		loans:          loanService,
		scheduler:      scheduler,
		redisClient:    redisClient,
		cleanups:       cleanups,
		queueConsumers: queueConsumers,
	}, nil
}

// Run starts the scheduler and the queue consumers and a goroutine
// which is responsible to stop them all.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.ConsumeQueues(gCtx, g))
	g.Go(app.Schedule(gCtx))
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("service stopped",
		zap.String("app.storage", app.config.Storage.Backend),
		zap.String("app.mail.transport", app.config.Mail.Transport),
		zap.Error(err),
	)
	return err
}

// Clean calls all registered cleanups functions.
func (app *App) Clean() {
	for _, f := range app.cleanups {
		f()
	}
}

// Schedule starts the overdue notification scheduler. Its returned
// error will be caught by the errorgroup.
func (app *App) Schedule(gCtx context.Context) func() error {
	return func() error {
		app.logger.Info("service starting",
			zap.String("app.storage", app.config.Storage.Backend),
			zap.String("app.mail.transport", app.config.Mail.Transport),
		)
		return app.scheduler.Run(gCtx)
	}
}

// Stop listens for the group context and states the reason of the
// shutdown. The scheduler and the consumers stop on their own once the
// group context is done, an in-flight run completes first. We
// explicitly return `nil` to let the errorgroup catch real failures.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("service stopping. reason: requested to stop")
		} else {
			app.logger.Info("service stopping. reason: errored at running")
		}

		if app.redisClient != nil {
			_ = app.redisClient.Close()
		}
		return nil
	}
}

// ConsumeQueues runs all queue consumers into separate controlled goroutines.
func (app *App) ConsumeQueues(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, consume := range app.queueConsumers {
			consume := consume
			g.Go(func() error {
				return consume(gCtx)
			})
		}
		return nil
	}
}
