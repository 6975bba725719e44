package shipments

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/BearBump/ShipBox/internal/cache"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/trackingnumber"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500

	createdMessage  = "Shipment created"
	unknownLocation = "Unknown"

	publishTimeout = 5 * time.Second

	// A deleted shipment leaves a marker in its tracking entry for this long so that a
	// lookup racing the delete cannot put the old record back.
	trackTombstoneTTL = time.Minute
)

var trackTombstone = []byte("deleted")

type Repository interface {
	CreateShipment(ctx context.Context, sh *models.Shipment) error
	GetShipmentByID(ctx context.Context, id string) (*models.Shipment, error)
	GetShipmentByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Shipment, error)
	TrackingNumberExists(ctx context.Context, trackingNumber string) (bool, error)
	UpdateShipment(ctx context.Context, id string, patch models.ShipmentPatch, updatedAt time.Time) (*models.Shipment, error)
	AppendHistory(ctx context.Context, id string, build models.HistoryBuilder) (*models.Shipment, error)
	DeleteShipment(ctx context.Context, id string) error
	ListShipments(ctx context.Context, opts models.ListOptions) ([]*models.Shipment, error)
	CountShipments(ctx context.Context, f models.ShipmentFilter) (int64, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// StatusUpdate moves a shipment along its lifecycle. An empty Status keeps the current one;
// nil Location and Message fall back to the shipment origin and a synthesized message.
type StatusUpdate struct {
	Status   models.ShipmentStatus
	Location *string
	Message  *string
}

type Page struct {
	Items  []*models.Shipment `json:"items"`
	Total  int64              `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// Service is the shipment lifecycle engine. Every status change goes through the store's
// AppendHistory so the status and the ledger entry are written together.
type Service struct {
	repo   Repository
	gen    *trackingnumber.Generator
	policy TransitionPolicy

	cache    cache.BytesCache
	trackTTL time.Duration

	events Publisher
	topic  string

	now   func() time.Time
	newID func() string
}

func New(repo Repository) *Service {
	return &Service{
		repo:   repo,
		gen:    trackingnumber.New(repo.TrackingNumberExists, nil),
		policy: Permissive,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (s *Service) WithGenerator(g *trackingnumber.Generator) *Service {
	if g != nil {
		s.gen = g
	}
	return s
}

func (s *Service) WithPolicy(p TransitionPolicy) *Service {
	if p != nil {
		s.policy = p
	}
	return s
}

// WithCache enables the public tracking cache. A zero ttl leaves it disabled.
func (s *Service) WithCache(c cache.BytesCache, ttl time.Duration) *Service {
	s.cache = c
	s.trackTTL = ttl
	return s
}

func (s *Service) WithEvents(p Publisher, topic string) *Service {
	s.events = p
	s.topic = topic
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) WithIDs(newID func() string) *Service {
	if newID != nil {
		s.newID = newID
	}
	return s
}

func (s *Service) CreateShipment(ctx context.Context, in models.ShipmentCreateInput, actor *models.Identity) (*models.Shipment, error) {
	in.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	in.Details = normalizeDetails(in.Details)
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = models.StatusPending
	}
	now := s.now().UTC()
	sh := &models.Shipment{
		ID:      s.newID(),
		Details: in.Details,
		Status:  status,
		TrackingHistory: []models.HistoryEntry{{
			Status:    status,
			Location:  in.Origin,
			Message:   createdMessage,
			Timestamp: now,
			UpdatedBy: models.ActorName(actor),
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if actor != nil && actor.ID != "" {
		id := actor.ID
		sh.CreatedBy = &id
	}

	insert := func(tn string) error {
		sh.TrackingNumber = tn
		return s.repo.CreateShipment(ctx, sh)
	}
	if in.TrackingNumber != "" {
		if err := insert(in.TrackingNumber); err != nil {
			return nil, err
		}
	} else if _, err := s.gen.Assign(ctx, insert); err != nil {
		return nil, err
	}

	s.afterMutation(ctx, sh, messages.ChangeCreated, actor)
	return sh, nil
}

// UpdateStatus appends a ledger entry and sets the shipment status from it. The entry is
// built under the store's per-shipment lock, so concurrent updates never lose an entry.
func (s *Service) UpdateStatus(ctx context.Context, id string, upd StatusUpdate, actor *models.Identity) (*models.Shipment, error) {
	upd.Status = models.ShipmentStatus(strings.TrimSpace(string(upd.Status)))
	if upd.Status != "" && !upd.Status.Valid() {
		return nil, models.NewValidationError("unknown status "+string(upd.Status), "status")
	}
	location := optional(upd.Location)
	message := optional(upd.Message)
	actorName := models.ActorName(actor)

	sh, err := s.repo.AppendHistory(ctx, id, func(cur *models.Shipment) (models.HistoryEntry, error) {
		next := upd.Status
		if next == "" {
			next = cur.Status
		}
		if err := s.policy(cur.Status, next); err != nil {
			return models.HistoryEntry{}, err
		}
		entry := models.HistoryEntry{
			Status:    next,
			Location:  location,
			Message:   message,
			Timestamp: s.now().UTC(),
			UpdatedBy: actorName,
		}
		if entry.Location == "" {
			entry.Location = cur.Origin
		}
		if entry.Location == "" {
			entry.Location = unknownLocation
		}
		if entry.Message == "" {
			entry.Message = "Status updated to " + string(next)
		}
		return entry, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, sh, messages.ChangeStatusChanged, actor)
	return sh, nil
}

// UpdateFields merges patch into the shipment details. It refreshes updatedAt but does
// not touch the tracking history.
func (s *Service) UpdateFields(ctx context.Context, id string, patch models.ShipmentPatch, actor *models.Identity) (*models.Shipment, error) {
	patch = normalizePatch(patch)
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	sh, err := s.repo.UpdateShipment(ctx, id, patch, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.afterMutation(ctx, sh, messages.ChangeUpdated, actor)
	return sh, nil
}

func (s *Service) DeleteShipment(ctx context.Context, id string, actor *models.Identity) error {
	sh, err := s.repo.GetShipmentByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteShipment(ctx, id); err != nil {
		return err
	}
	s.afterMutation(ctx, sh, messages.ChangeDeleted, actor)
	return nil
}

func (s *Service) GetShipment(ctx context.Context, id string) (*models.Shipment, error) {
	return s.repo.GetShipmentByID(ctx, id)
}

// TrackPublic looks a shipment up by tracking number for unauthenticated callers.
// The number must match exactly; malformed or padded input is reported as not found
// without touching the store.
//
// Committed mutations write their result into the cache, so a miss is filled with SetNX:
// a snapshot read before a concurrent commit never replaces the committed one.
func (s *Service) TrackPublic(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	if !trackingnumber.Valid(trackingNumber) {
		return nil, errors.Wrap(models.ErrNotFound, trackingNumber)
	}

	if s.cacheEnabled() {
		b, ok, err := s.cache.Get(ctx, TrackKey(trackingNumber))
		if err != nil {
			slog.Debug("track cache get", "tracking_number", trackingNumber, "error", err.Error())
		}
		if err == nil && ok {
			if bytes.Equal(b, trackTombstone) {
				return nil, errors.Wrap(models.ErrNotFound, trackingNumber)
			}
			var sh models.Shipment
			if json.Unmarshal(b, &sh) == nil {
				return &sh, nil
			}
		}
	}

	sh, err := s.repo.GetShipmentByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	s.fillTrack(ctx, sh)
	return sh, nil
}

// WarmTrack reloads the public tracking cache entry from the store. A shipment that no
// longer exists gets a tombstone.
func (s *Service) WarmTrack(ctx context.Context, trackingNumber string) error {
	if !s.cacheEnabled() {
		return nil
	}
	sh, err := s.repo.GetShipmentByTrackingNumber(ctx, trackingNumber)
	if errors.Is(err, models.ErrNotFound) {
		return s.DropTrack(ctx, trackingNumber)
	}
	if err != nil {
		return err
	}
	return s.storeTrack(ctx, sh)
}

// DropTrack replaces the tracking entry with a short-lived tombstone.
func (s *Service) DropTrack(ctx context.Context, trackingNumber string) error {
	if !s.cacheEnabled() {
		return nil
	}
	ttl := trackTombstoneTTL
	if s.trackTTL < ttl {
		ttl = s.trackTTL
	}
	return s.cache.Set(ctx, TrackKey(trackingNumber), trackTombstone, ttl)
}

func (s *Service) ListShipments(ctx context.Context, opts models.ListOptions) (*Page, error) {
	if opts.Offset < 0 {
		return nil, models.NewValidationError("offset must not be negative", "offset")
	}
	if err := validateFilter(opts.ShipmentFilter); err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultPageSize
	}
	if opts.Limit > MaxPageSize {
		opts.Limit = MaxPageSize
	}

	items, err := s.repo.ListShipments(ctx, opts)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountShipments(ctx, opts.ShipmentFilter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.Shipment{}
	}
	return &Page{Items: items, Total: total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.trackTTL > 0
}

// storeTrack overwrites the entry with a state read after the latest commit.
func (s *Service) storeTrack(ctx context.Context, sh *models.Shipment) error {
	if !s.cacheEnabled() {
		return nil
	}
	b, err := json.Marshal(sh)
	if err != nil {
		return errors.Wrap(err, "marshal tracking entry")
	}
	return s.cache.Set(ctx, TrackKey(sh.TrackingNumber), b, s.trackTTL)
}

// fillTrack caches a read-path snapshot unless an entry is already present.
func (s *Service) fillTrack(ctx context.Context, sh *models.Shipment) {
	if !s.cacheEnabled() {
		return
	}
	b, err := json.Marshal(sh)
	if err != nil {
		return
	}
	if _, err := s.cache.SetNX(ctx, TrackKey(sh.TrackingNumber), b, s.trackTTL); err != nil {
		slog.Debug("track cache fill", "tracking_number", sh.TrackingNumber, "error", err.Error())
	}
}

// afterMutation runs once the store has committed. Cache and broker failures are logged
// and never reported to the caller.
func (s *Service) afterMutation(ctx context.Context, sh *models.Shipment, kind messages.ChangeKind, actor *models.Identity) {
	var err error
	if kind == messages.ChangeDeleted {
		err = s.DropTrack(ctx, sh.TrackingNumber)
	} else {
		err = s.storeTrack(ctx, sh)
	}
	if err != nil {
		slog.Warn("write track cache", "tracking_number", sh.TrackingNumber, "error", err.Error())
	}
	if s.events == nil || s.topic == "" {
		return
	}

	msg := messages.ShipmentChanged{
		ShipmentID:     sh.ID,
		TrackingNumber: sh.TrackingNumber,
		Kind:           kind,
		Status:         string(sh.Status),
		Actor:          models.ActorName(actor),
		OccurredAt:     sh.UpdatedAt,
	}
	if last, ok := sh.LastEntry(); ok && kind == messages.ChangeStatusChanged {
		msg.Location = last.Location
		msg.Message = last.Message
	}
	if kind == messages.ChangeDeleted {
		msg.OccurredAt = s.now().UTC()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.Publish(pctx, s.topic, []byte(sh.ID), b); err != nil {
		slog.Warn("publish shipment change", "shipment_id", sh.ID, "kind", string(kind), "error", err.Error())
	}
}

func TrackKey(trackingNumber string) string {
	return "shipment:track:" + trackingNumber
}
