package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/broker/kafka"
	"github.com/BearBump/ShipBox/internal/cache"
	"github.com/BearBump/ShipBox/internal/cache/rediscache"
	"github.com/BearBump/ShipBox/internal/services/projector"
	"github.com/BearBump/ShipBox/internal/services/shipments"
	"github.com/BearBump/ShipBox/internal/storage"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkerHTTPAddr = ":8082"
	defaultTopic          = "shipment.changed"
	defaultConsumerGroup  = "shipment-worker"
	defaultTrackCacheTTL  = 10 * time.Minute
	defaultResyncInterval = 5 * time.Minute
	postgresWait          = 60 * time.Second
)

type eventConsumer interface {
	projector.Consumer
	Close() error
}

type closableCache interface {
	cache.BytesCache
	Close() error
}

type workerFactories struct {
	newStorage  func(cfg *config.Config) (storage.Store, func(), error)
	newCache    func(cfg *config.Config) closableCache
	newConsumer func(cfg *config.Config, topic, group string) eventConsumer
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (storage.Store, func(), error) {
			return storage.Open(cfg, postgresWait)
		},
		newCache: func(cfg *config.Config) closableCache {
			return rediscache.New(cfg.Redis.Addr())
		},
		newConsumer: func(cfg *config.Config, topic, group string) eventConsumer {
			return kafka.NewConsumer(cfg.Kafka.Brokers(), topic, group)
		},
	}
}

func RunShipmentWorker(ctx context.Context, cfg *config.Config, f workerFactories, swaggerPath string) error {
	topic := cfg.Kafka.ShipmentEventsTopicName
	if topic == "" {
		topic = defaultTopic
	}
	group := cfg.ShipBox.KafkaConsumerGroup
	if group == "" {
		group = defaultConsumerGroup
	}
	httpAddr := cfg.ShipBox.WorkerHTTPAddr
	if httpAddr == "" {
		httpAddr = defaultWorkerHTTPAddr
	}
	cacheTTL := time.Duration(cfg.ShipBox.TrackCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = defaultTrackCacheTTL
	}
	resyncInterval := time.Duration(cfg.ShipBox.WorkerResyncIntervalSeconds) * time.Second
	if resyncInterval <= 0 {
		resyncInterval = defaultResyncInterval
	}

	st, closeDB, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeDB != nil {
		defer closeDB()
	}

	c := f.newCache(cfg)
	if c == nil {
		return errors.New("worker requires a redis cache")
	}
	defer func() { _ = c.Close() }()

	consumer := f.newConsumer(cfg, topic, group)
	defer func() { _ = consumer.Close() }()

	svc := shipments.New(st).WithCache(c, cacheTTL)
	p := projector.New(svc, st).
		WithSettings(resyncInterval, cfg.ShipBox.WorkerResyncBatchSize, cfg.ShipBox.WorkerConcurrency)

	slog.Info("kafka consumer started", "topic", topic, "group", group)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx, consumer)
	})
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, workerHTTPOpts{
			httpAddr:    httpAddr,
			swaggerPath: swaggerPath,
			projector:   p,
			ready:       readiness(st, c),
			cfg:         cfg,
		})
	})
	return g.Wait()
}

type pinger interface {
	Ping(ctx context.Context) error
}

func readiness(deps ...any) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for _, d := range deps {
			if p, ok := d.(pinger); ok {
				if err := p.Ping(ctx); err != nil {
					return err
				}
			}
		}
		return nil
	}
}
