package reporting

import (
	"context"
	"log/slog"

	"github.com/BearBump/ShipBox/internal/models"
	"golang.org/x/sync/errgroup"
)

const DefaultRecentLimit = 5

type Repository interface {
	ListShipments(ctx context.Context, opts models.ListOptions) ([]*models.Shipment, error)
	CountShipments(ctx context.Context, f models.ShipmentFilter) (int64, error)
}

// IdentityResolver maps a creator id to a display name. Deactivated users still resolve.
type IdentityResolver interface {
	Username(ctx context.Context, id string) (string, error)
}

type RecentShipment struct {
	*models.Shipment
	CreatedByUsername string `json:"createdByUsername,omitempty"`
}

type Stats struct {
	TotalCount      int64            `json:"totalCount"`
	ActiveCount     int64            `json:"activeCount"`
	DeliveredCount  int64            `json:"deliveredCount"`
	PendingCount    int64            `json:"pendingCount"`
	RecentShipments []RecentShipment `json:"recentShipments"`
}

type Service struct {
	repo        Repository
	identities  IdentityResolver
	recentLimit int
}

func New(repo Repository) *Service {
	return &Service{repo: repo, recentLimit: DefaultRecentLimit}
}

// WithIdentities enriches recent shipments with the creator's username.
func (s *Service) WithIdentities(r IdentityResolver) *Service {
	s.identities = r
	return s
}

func (s *Service) WithRecentLimit(n int) *Service {
	if n > 0 {
		s.recentLimit = n
	}
	return s
}

// Stats computes the dashboard counters. Active means processing, in transit, on hold
// or out for delivery.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	out := &Stats{}
	var recent []*models.Shipment

	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, statuses ...models.ShipmentStatus) {
		g.Go(func() error {
			n, err := s.repo.CountShipments(gctx, models.ShipmentFilter{Statuses: statuses})
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}
	count(&out.TotalCount)
	count(&out.ActiveCount, models.ActiveStatuses...)
	count(&out.DeliveredCount, models.StatusDelivered)
	count(&out.PendingCount, models.StatusPending)
	g.Go(func() error {
		var err error
		recent, err = s.repo.ListShipments(gctx, models.ListOptions{Limit: s.recentLimit})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.RecentShipments = make([]RecentShipment, 0, len(recent))
	names := map[string]string{}
	for _, sh := range recent {
		rs := RecentShipment{Shipment: sh}
		if sh.CreatedBy != nil {
			rs.CreatedByUsername = s.username(ctx, *sh.CreatedBy, names)
		}
		out.RecentShipments = append(out.RecentShipments, rs)
	}
	return out, nil
}

func (s *Service) username(ctx context.Context, id string, seen map[string]string) string {
	if name, ok := seen[id]; ok {
		return name
	}
	if s.identities == nil {
		return ""
	}
	name, err := s.identities.Username(ctx, id)
	if err != nil {
		slog.Debug("resolve shipment creator", "user_id", id, "error", err.Error())
		name = ""
	}
	seen[id] = name
	return name
}
