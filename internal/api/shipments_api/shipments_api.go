package shipments_api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/reporting"
	"github.com/BearBump/ShipBox/internal/services/shipments"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type ShipmentService interface {
	CreateShipment(ctx context.Context, in models.ShipmentCreateInput, actor *models.Identity) (*models.Shipment, error)
	UpdateStatus(ctx context.Context, id string, upd shipments.StatusUpdate, actor *models.Identity) (*models.Shipment, error)
	UpdateFields(ctx context.Context, id string, patch models.ShipmentPatch, actor *models.Identity) (*models.Shipment, error)
	DeleteShipment(ctx context.Context, id string, actor *models.Identity) error
	GetShipment(ctx context.Context, id string) (*models.Shipment, error)
	ListShipments(ctx context.Context, opts models.ListOptions) (*shipments.Page, error)
	TrackPublic(ctx context.Context, trackingNumber string) (*models.Shipment, error)
}

type StatsService interface {
	Stats(ctx context.Context) (*reporting.Stats, error)
}

type IdentityProvider interface {
	Login(ctx context.Context, username, password string) (string, models.Identity, error)
	ValidateToken(ctx context.Context, token string) (models.Identity, error)
}

type LoginLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Options struct {
	// LoginLimitPerMinute caps login attempts per username. Zero disables the limit.
	LoginLimitPerMinute int64
	// SwaggerPath, when set, is served at /swagger.json and browsable under /docs/.
	SwaggerPath string
}

type API struct {
	shipments ShipmentService
	stats     StatsService
	identity  IdentityProvider
	limiter   LoginLimiter
	opts      Options
}

func New(svc ShipmentService, stats StatsService, idp IdentityProvider, limiter LoginLimiter, opts Options) *API {
	return &API{shipments: svc, stats: stats, identity: idp, limiter: limiter, opts: opts}
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, accessLog, middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/test", a.handleTest)
		r.Post("/login", a.handleLogin)
		r.Get("/track/{trackingNumber}", a.handleTrack)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)
			r.Get("/me", a.handleMe)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/stats", a.handleStats)
				r.Route("/shipments", func(r chi.Router) {
					r.Get("/", a.handleListShipments)
					r.Post("/", a.handleCreateShipment)
					r.Get("/{id}", a.handleGetShipment)
					r.Put("/{id}", a.handleUpdateShipment)
					r.Delete("/{id}", a.handleDeleteShipment)
					r.Patch("/{id}/status", a.handleUpdateStatus)
				})
			})
		})
	})

	if a.opts.SwaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, a.opts.SwaggerPath)
		})
		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(a.opts.SwaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}
