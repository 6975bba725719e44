// Package memshipment is an in-process implementation of the shipment and user stores.
// It backs unit tests and the "memory" storage driver; every mutation holds a single
// store-wide lock, which makes AppendHistory indivisible per shipment.
package memshipment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/ShipBox/internal/identity"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Store struct {
	mu sync.Mutex

	shipments  map[string]*models.Shipment
	byTracking map[string]string

	users map[string]*models.User

	// seq orders shipments created within the same clock tick
	seq     int64
	created map[string]int64
}

func New() *Store {
	return &Store{
		shipments:  map[string]*models.Shipment{},
		byTracking: map[string]string{},
		users:      map[string]*models.User{},
		created:    map[string]int64{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateShipment(_ context.Context, sh *models.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byTracking[sh.TrackingNumber]; ok {
		return errors.Wrap(models.ErrDuplicateTrackingNumber, sh.TrackingNumber)
	}
	if _, ok := s.shipments[sh.ID]; ok {
		return errors.Errorf("shipment %s already exists", sh.ID)
	}
	s.shipments[sh.ID] = clone(sh)
	s.byTracking[sh.TrackingNumber] = sh.ID
	s.seq++
	s.created[sh.ID] = s.seq
	return nil
}

func (s *Store) GetShipmentByID(_ context.Context, id string) (*models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shipments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clone(sh), nil
}

func (s *Store) GetShipmentByTrackingNumber(_ context.Context, trackingNumber string) (*models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byTracking[trackingNumber]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clone(s.shipments[id]), nil
}

func (s *Store) TrackingNumberExists(_ context.Context, trackingNumber string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.byTracking[trackingNumber]
	return ok, nil
}

func (s *Store) UpdateShipment(_ context.Context, id string, patch models.ShipmentPatch, updatedAt time.Time) (*models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shipments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	patch.Apply(&sh.Details)
	sh.UpdatedAt = updatedAt.UTC()
	return clone(sh), nil
}

func (s *Store) AppendHistory(_ context.Context, id string, build models.HistoryBuilder) (*models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shipments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	entry, err := build(clone(sh))
	if err != nil {
		return nil, err
	}
	entry.Timestamp = entry.Timestamp.UTC()

	sh.TrackingHistory = append(sh.TrackingHistory, entry)
	sh.Status = entry.Status
	sh.UpdatedAt = entry.Timestamp
	return clone(sh), nil
}

func (s *Store) DeleteShipment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shipments[id]
	if !ok {
		return models.ErrNotFound
	}
	delete(s.byTracking, sh.TrackingNumber)
	delete(s.shipments, id)
	delete(s.created, id)
	return nil
}

func (s *Store) ListShipments(_ context.Context, opts models.ListOptions) ([]*models.Shipment, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.filter(opts.ShipmentFilter)
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return s.created[a.ID] > s.created[b.ID]
	})

	if opts.Offset >= len(matched) {
		return []*models.Shipment{}, nil
	}
	matched = matched[opts.Offset:]
	if len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	out := make([]*models.Shipment, 0, len(matched))
	for _, sh := range matched {
		out = append(out, clone(sh))
	}
	return out, nil
}

func (s *Store) CountShipments(_ context.Context, f models.ShipmentFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.filter(f))), nil
}

func (s *Store) filter(f models.ShipmentFilter) []*models.Shipment {
	want := make(map[models.ShipmentStatus]struct{}, len(f.Statuses))
	for _, st := range f.Statuses {
		want[st] = struct{}{}
	}
	out := make([]*models.Shipment, 0, len(s.shipments))
	for _, sh := range s.shipments {
		if len(want) > 0 {
			if _, ok := want[sh.Status]; !ok {
				continue
			}
		}
		out = append(out, sh)
	}
	return out
}

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, x := range s.users {
		if x.Username == u.Username {
			return errors.Wrap(identity.ErrUserExists, u.Username)
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (s *Store) GetUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func clone(sh *models.Shipment) *models.Shipment {
	cp := *sh
	cp.TrackingHistory = append([]models.HistoryEntry{}, sh.TrackingHistory...)
	if sh.CreatedBy != nil {
		v := *sh.CreatedBy
		cp.CreatedBy = &v
	}
	cp.ExpectedDeliveryDate = clonePtr(sh.ExpectedDeliveryDate)
	cp.DepartureTime = clonePtr(sh.DepartureTime)
	cp.PickupDate = clonePtr(sh.PickupDate)
	return &cp
}

func clonePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
