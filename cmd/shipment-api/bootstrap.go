package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ShipBox/config"
	shipmentsapi "github.com/BearBump/ShipBox/internal/api/shipments_api"
	"github.com/BearBump/ShipBox/internal/broker/kafka"
	"github.com/BearBump/ShipBox/internal/cache"
	"github.com/BearBump/ShipBox/internal/cache/rediscache"
	"github.com/BearBump/ShipBox/internal/identity"
	"github.com/BearBump/ShipBox/internal/logging"
	"github.com/BearBump/ShipBox/internal/services/reporting"
	"github.com/BearBump/ShipBox/internal/services/shipments"
	"github.com/BearBump/ShipBox/internal/storage"
)

const (
	defaultHTTPAddr      = ":8080"
	defaultTopic         = "shipment.changed"
	defaultTrackCacheTTL = 10 * time.Minute
	defaultTokenTTL      = 12 * time.Hour
	defaultLoginLimit    = 10
	postgresWait         = 60 * time.Second
)

type trackCache interface {
	cache.BytesCache
	Close() error
}

type loginLimiter interface {
	shipmentsapi.LoginLimiter
	Close() error
}

type eventProducer interface {
	shipments.Publisher
	Close() error
}

// apiFactories builds the external collaborators. A factory returning nil means the
// collaborator is not configured and the feature it backs is switched off.
type apiFactories struct {
	newStorage     func(cfg *config.Config) (storage.Store, func(), error)
	newCache       func(cfg *config.Config) trackCache
	newRateLimiter func(cfg *config.Config) loginLimiter
	newProducer    func(cfg *config.Config) eventProducer
}

func defaultAPIFactories() apiFactories {
	return apiFactories{
		newStorage: func(cfg *config.Config) (storage.Store, func(), error) {
			return storage.Open(cfg, postgresWait)
		},
		newCache: func(cfg *config.Config) trackCache {
			if cfg.Redis.Host == "" {
				return nil
			}
			return rediscache.New(cfg.Redis.Addr())
		},
		newRateLimiter: func(cfg *config.Config) loginLimiter {
			if cfg.Redis.Host == "" {
				return nil
			}
			return rediscache.NewRateLimiter(cfg.Redis.Addr())
		},
		newProducer: func(cfg *config.Config) eventProducer {
			if cfg.Kafka.Host == "" {
				return nil
			}
			return kafka.NewProducer(cfg.Kafka.Brokers())
		},
	}
}

type shipmentAPIApp struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    shipmentAPIOpts
	handler http.Handler
	closers []func()
}

func mustBootstrapShipmentAPI() *shipmentAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to parse config, %v", err))
	}
	slog.SetDefault(logging.New(cfg.Logging))

	app, err := newShipmentAPIApp(cfg, defaultAPIFactories(), os.Getenv("swaggerPath"))
	if err != nil {
		panic(err)
	}
	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return app
}

func newShipmentAPIApp(cfg *config.Config, f apiFactories, swaggerPath string) (*shipmentAPIApp, error) {
	httpAddr := cfg.ShipBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = defaultHTTPAddr
	}
	topic := cfg.Kafka.ShipmentEventsTopicName
	if topic == "" {
		topic = defaultTopic
	}
	cacheTTL := time.Duration(cfg.ShipBox.TrackCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = defaultTrackCacheTTL
	}
	tokenTTL := time.Duration(cfg.ShipBox.TokenTTLSeconds) * time.Second
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	loginLimit := int64(cfg.ShipBox.LoginRateLimitPerMinute)
	if loginLimit <= 0 {
		loginLimit = defaultLoginLimit
	}

	app := &shipmentAPIApp{opts: shipmentAPIOpts{httpAddr: httpAddr}}

	st, closeDB, err := f.newStorage(cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeDB)

	idp, err := identity.New(st, cfg.ShipBox.JWTSecret, tokenTTL)
	if err != nil {
		app.Close()
		return nil, err
	}

	svc := shipments.New(st).WithPolicy(shipments.PolicyFor(cfg.ShipBox.StrictTerminalStatus))
	if c := f.newCache(cfg); c != nil {
		svc.WithCache(c, cacheTTL)
		app.closers = append(app.closers, func() { _ = c.Close() })
	}
	if p := f.newProducer(cfg); p != nil {
		svc.WithEvents(p, topic)
		app.closers = append(app.closers, func() { _ = p.Close() })
	}

	var limiter shipmentsapi.LoginLimiter
	if rl := f.newRateLimiter(cfg); rl != nil {
		limiter = rl
		app.closers = append(app.closers, func() { _ = rl.Close() })
	}

	stats := reporting.New(st).
		WithIdentities(idp).
		WithRecentLimit(cfg.ShipBox.RecentShipmentsLimit)

	app.handler = shipmentsapi.New(svc, stats, idp, limiter, shipmentsapi.Options{
		LoginLimitPerMinute: loginLimit,
		SwaggerPath:         swaggerPath,
	}).Routes()

	slog.Info("shipment-api configured",
		"storage", cfg.ShipBox.StorageDriver,
		"strict_terminal_status", cfg.ShipBox.StrictTerminalStatus,
		"topic", topic,
	)
	return app, nil
}

func (a *shipmentAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *shipmentAPIApp) Run() error {
	return runShipmentAPI(a.ctx, a.opts, a.handler)
}
