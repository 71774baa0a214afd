package main

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/gateway"
	"trade-reconciliation/internal/lock"
	"trade-reconciliation/internal/logger"
	"trade-reconciliation/internal/messaging"
	"trade-reconciliation/internal/rules"
	"trade-reconciliation/internal/store"
	"trade-reconciliation/internal/usecase"
	"trade-reconciliation/internal/workflow"
)

// app holds the wired components shared by all subcommands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	recon    *usecase.ReconciliationUseCase
	queries  *usecase.QueryService
	workflow *workflow.Engine
	closers  []func() error
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel)
	a := &app{cfg: cfg, logger: log}

	// Persistence
	db, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	a.store = store.New(db, log)

	// Run lock
	var locker usecase.RunLocker = lock.NewLocal()
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		locker = lock.NewRedis(client, cfg.Redis.LockTTL, log)
	}

	// Break events
	var publisher interface {
		usecase.EventPublisher
		Close() error
	} = messaging.Nop{}
	if cfg.Kafka.Enabled {
		publisher = messaging.NewKafkaPublisher(messaging.NewKafkaWriter(cfg.Kafka), log)
	}
	a.closers = append(a.closers, publisher.Close)

	a.recon = usecase.NewReconciliationUseCase(cfg, usecase.Dependencies{
		Source:    gateway.NewCSVTradeSource(cfg.Ingestion, log),
		Runs:      a.store,
		Breaks:    a.store,
		Locker:    locker,
		Publisher: publisher,
	}, log)
	a.queries = usecase.NewQueryService(a.store, a.store, log)

	allow, rs, err := cfg.Resolution.Compile()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.workflow = workflow.NewEngine(a.store, workflow.NewMachine(cfg.Workflow), rules.Sort(rs), allow, log,
		workflow.WithPublisher(publisher),
		workflow.WithSweepBatch(cfg.Workflow.SweepBatchSize))

	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
