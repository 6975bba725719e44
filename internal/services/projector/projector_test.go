package projector

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeTracks struct {
	mu      sync.Mutex
	warmed  []string
	dropped []string
	warmErr error
}

func (f *fakeTracks) WarmTrack(ctx context.Context, tn string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.warmErr != nil {
		return f.warmErr
	}
	f.warmed = append(f.warmed, tn)
	return nil
}

func (f *fakeTracks) DropTrack(ctx context.Context, tn string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, tn)
	return nil
}

type fakeLister struct {
	items []*models.Shipment
	err   error
	// maxLimit caps the page size the way the stores do; zero means no cap.
	maxLimit int
	calls    []models.ListOptions
}

func (f *fakeLister) ListShipments(ctx context.Context, opts models.ListOptions) ([]*models.Shipment, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return nil, f.err
	}
	limit := opts.Limit
	if f.maxLimit > 0 && limit > f.maxLimit {
		limit = f.maxLimit
	}
	if opts.Offset >= len(f.items) {
		return nil, nil
	}
	end := opts.Offset + limit
	if end > len(f.items) {
		end = len(f.items)
	}
	return f.items[opts.Offset:end], nil
}

func shipmentsNumbered(from, n int) []*models.Shipment {
	out := make([]*models.Shipment, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &models.Shipment{TrackingNumber: strconv.Itoa(from + i)})
	}
	return out
}

type sliceConsumer struct {
	values [][]byte
}

func (c *sliceConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for _, v := range c.values {
		if err := handler([]byte("k"), v); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func event(t *testing.T, kind messages.ChangeKind, tn string) []byte {
	t.Helper()
	b, err := json.Marshal(messages.ShipmentChanged{ShipmentID: "id", TrackingNumber: tn, Kind: kind})
	require.NoError(t, err)
	return b
}

func TestHandle_WarmsAndDrops(t *testing.T) {
	tracks := &fakeTracks{}
	p := New(tracks, &fakeLister{})
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, nil, event(t, messages.ChangeCreated, "100000001")))
	require.NoError(t, p.Handle(ctx, nil, event(t, messages.ChangeStatusChanged, "100000001")))
	require.NoError(t, p.Handle(ctx, nil, event(t, messages.ChangeDeleted, "100000001")))
	require.NoError(t, p.Handle(ctx, nil, []byte("{garbage")))

	require.Equal(t, []string{"100000001", "100000001"}, tracks.warmed)
	require.Equal(t, []string{"100000001"}, tracks.dropped)

	st := p.Stats()
	require.Equal(t, int64(4), st.TotalEvents)
	require.Equal(t, int64(2), st.TotalWarmed)
	require.Equal(t, int64(1), st.TotalDropped)
	require.Equal(t, int64(1), st.TotalSkipped)
	require.NotNil(t, st.LastEventAt)
}

func TestHandle_CacheErrorIsCountedNotReturned(t *testing.T) {
	p := New(&fakeTracks{warmErr: errors.New("redis down")}, &fakeLister{})

	require.NoError(t, p.Handle(context.Background(), nil, event(t, messages.ChangeUpdated, "100000002")))
	st := p.Stats()
	require.Equal(t, int64(1), st.TotalErrors)
	require.Equal(t, "redis down", st.LastError)
}

func TestResync_WarmsRecent(t *testing.T) {
	tracks := &fakeTracks{}
	lister := &fakeLister{items: []*models.Shipment{{TrackingNumber: "100000001"}, {TrackingNumber: "100000002"}}}
	p := New(tracks, lister).WithSettings(0, 2, 1)

	p.Resync(context.Background())
	require.Equal(t, 2, lister.calls[0].Limit)
	require.ElementsMatch(t, []string{"100000001", "100000002"}, tracks.warmed)
	require.NotNil(t, p.Stats().LastResyncAt)
}

func TestResync_PagesThroughWholeStore(t *testing.T) {
	tracks := &fakeTracks{}
	lister := &fakeLister{items: shipmentsNumbered(100000000, 5)}
	p := New(tracks, lister).WithSettings(0, 2, 3)

	p.Resync(context.Background())
	require.ElementsMatch(t, []string{"100000000", "100000001", "100000002", "100000003", "100000004"}, tracks.warmed)
	require.Equal(t, []int{0, 2, 4, 5}, offsets(lister.calls))
	require.Equal(t, int64(5), p.Stats().TotalWarmed)
}

func TestResync_BatchAboveStoreCap(t *testing.T) {
	tracks := &fakeTracks{}
	lister := &fakeLister{items: shipmentsNumbered(100000000, 7), maxLimit: 3}
	p := New(tracks, lister).WithSettings(0, 1000, 2)

	p.Resync(context.Background())
	require.Len(t, tracks.warmed, 7)
	require.Equal(t, []int{0, 3, 6, 7}, offsets(lister.calls))
}

func TestResync_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lister := &fakeLister{items: shipmentsNumbered(100000000, 5)}
	p := New(&fakeTracks{}, lister).WithSettings(0, 2, 1)

	p.Resync(ctx)
	require.Empty(t, lister.calls)
}

func offsets(calls []models.ListOptions) []int {
	out := make([]int, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Offset)
	}
	return out
}

func TestResync_ListError(t *testing.T) {
	p := New(&fakeTracks{}, &fakeLister{err: errors.New("db down")})
	p.Resync(context.Background())
	require.Equal(t, int64(1), p.Stats().TotalErrors)
}

func TestRun_ConsumesAndStopsOnCancel(t *testing.T) {
	tracks := &fakeTracks{}
	p := New(tracks, &fakeLister{}).WithSettings(time.Hour, 1, 1)
	c := &sliceConsumer{values: [][]byte{event(t, messages.ChangeCreated, "100000009")}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, c) }()

	require.Eventually(t, func() bool { return p.Stats().TotalWarmed == 1 }, time.Second, 5*time.Millisecond)
	p.Trigger()
	require.NotNil(t, p.Stats().LastTriggerAt)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("projector did not stop")
	}
}
