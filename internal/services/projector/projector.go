// Package projector keeps the public tracking cache in line with committed shipment
// changes. It applies shipment.changed events and periodically re-warms recent shipments.
package projector

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/BearBump/ShipBox/internal/models"
	"golang.org/x/sync/errgroup"
)

type Consumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type Tracker interface {
	WarmTrack(ctx context.Context, trackingNumber string) error
	DropTrack(ctx context.Context, trackingNumber string) error
}

type Lister interface {
	ListShipments(ctx context.Context, opts models.ListOptions) ([]*models.Shipment, error)
}

type Projector struct {
	tracks Tracker
	lister Lister

	resyncInterval time.Duration
	resyncBatch    int
	concurrency    int

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastEventUnixNano   atomic.Int64
	lastResyncUnixNano  atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalEvents         atomic.Int64
	totalWarmed         atomic.Int64
	totalDropped        atomic.Int64
	totalSkipped        atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(tracks Tracker, lister Lister) *Projector {
	return &Projector{
		tracks:            tracks,
		lister:            lister,
		resyncInterval:    5 * time.Minute,
		resyncBatch:       100,
		concurrency:       8,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (p *Projector) WithSettings(resyncInterval time.Duration, resyncBatch, concurrency int) *Projector {
	if resyncInterval > 0 {
		p.resyncInterval = resyncInterval
	}
	if resyncBatch > 0 {
		p.resyncBatch = resyncBatch
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	return p
}

// Trigger forces an immediate resync (best-effort, non-blocking).
func (p *Projector) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastEventAt   *time.Time `json:"lastEventAt,omitempty"`
	LastResyncAt  *time.Time `json:"lastResyncAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalEvents   int64      `json:"totalEvents"`
	TotalWarmed   int64      `json:"totalWarmed"`
	TotalDropped  int64      `json:"totalDropped"`
	TotalSkipped  int64      `json:"totalSkipped"`
	TotalErrors   int64      `json:"totalErrors"`
	LastError     string     `json:"lastError,omitempty"`
}

func (p *Projector) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalEvents:  p.totalEvents.Load(),
		TotalWarmed:  p.totalWarmed.Load(),
		TotalDropped: p.totalDropped.Load(),
		TotalSkipped: p.totalSkipped.Load(),
		TotalErrors:  p.totalErrors.Load(),
	}
	st.LastEventAt = unixNanoPtr(p.lastEventUnixNano.Load())
	st.LastResyncAt = unixNanoPtr(p.lastResyncUnixNano.Load())
	st.LastTriggerAt = unixNanoPtr(p.lastTriggerUnixNano.Load())
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func unixNanoPtr(n int64) *time.Time {
	if n <= 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}

// Run consumes events and resyncs on a ticker until ctx is done or the consumer fails.
func (p *Projector) Run(ctx context.Context, consumer Consumer) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Consume(gctx, func(key, value []byte) error {
			return p.Handle(gctx, key, value)
		})
	})
	g.Go(func() error {
		return p.resyncLoop(gctx)
	})
	return g.Wait()
}

func (p *Projector) resyncLoop(ctx context.Context) error {
	t := time.NewTicker(p.resyncInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.Resync(ctx)
		case <-p.triggerCh:
			p.Resync(ctx)
		}
	}
}

// Handle applies one shipment.changed message. Undecodable messages are skipped and
// cache failures only counted: the entry TTL bounds how stale a missed update can get.
func (p *Projector) Handle(ctx context.Context, key, value []byte) error {
	p.totalEvents.Add(1)
	p.lastEventUnixNano.Store(time.Now().UTC().UnixNano())

	var msg messages.ShipmentChanged
	if err := json.Unmarshal(value, &msg); err != nil || msg.TrackingNumber == "" {
		p.totalSkipped.Add(1)
		slog.Warn("skip shipment change", "key", string(key))
		return nil
	}

	var err error
	if msg.Kind == messages.ChangeDeleted {
		if err = p.tracks.DropTrack(ctx, msg.TrackingNumber); err == nil {
			p.totalDropped.Add(1)
		}
	} else {
		if err = p.tracks.WarmTrack(ctx, msg.TrackingNumber); err == nil {
			p.totalWarmed.Add(1)
		}
	}
	if err != nil {
		p.recordError(err)
		slog.Error("apply shipment change",
			"shipment_id", msg.ShipmentID,
			"kind", string(msg.Kind),
			"error", err.Error(),
		)
	}
	return nil
}

// Resync walks the whole store newest first in resyncBatch pages and re-warms every
// tracking entry. Paging stops at the first empty page, so a store that caps the page
// size below resyncBatch is still read to the end.
func (p *Projector) Resync(ctx context.Context) {
	p.lastResyncUnixNano.Store(time.Now().UTC().UnixNano())

	offset := 0
	for ctx.Err() == nil {
		items, err := p.lister.ListShipments(ctx, models.ListOptions{Limit: p.resyncBatch, Offset: offset})
		if err != nil {
			p.recordError(err)
			slog.Error("list shipments for resync", "offset", offset, "error", err.Error())
			return
		}
		if len(items) == 0 {
			return
		}
		p.warmAll(ctx, items)
		offset += len(items)
	}
}

func (p *Projector) warmAll(ctx context.Context, items []*models.Shipment) {
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, sh := range items {
		sem <- struct{}{}
		wg.Add(1)
		go func(tn string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			if err := p.tracks.WarmTrack(ctx, tn); err != nil {
				p.recordError(err)
				slog.Error("resync track", "tracking_number", tn, "error", err.Error())
				return
			}
			p.totalWarmed.Add(1)
		}(sh.TrackingNumber)
	}
	wg.Wait()
}

func (p *Projector) recordError(err error) {
	p.totalErrors.Add(1)
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}
