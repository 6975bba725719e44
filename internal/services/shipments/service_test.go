package shipments

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ShipBox/internal/cache/rediscache"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/storage/memshipment"
	"github.com/BearBump/ShipBox/internal/trackingnumber"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemService(t *testing.T) (*Service, *memshipment.Store) {
	t.Helper()
	st := memshipment.New()
	return New(st), st
}

func TestEndToEnd_CreateUpdateTrack(t *testing.T) {
	svc, _ := newMemService(t)
	ctx := context.Background()

	created, err := svc.CreateShipment(ctx, validInput(), nil)
	require.NoError(t, err)
	require.True(t, trackingnumber.Valid(created.TrackingNumber))
	require.Len(t, created.TrackingHistory, 1)
	require.Equal(t, models.StatusPending, created.TrackingHistory[0].Status)
	require.Equal(t, "Lagos", created.TrackingHistory[0].Location)
	require.Equal(t, "Shipment created", created.TrackingHistory[0].Message)
	require.Equal(t, "Admin", created.TrackingHistory[0].UpdatedBy)
	require.Nil(t, created.CreatedBy)

	hub := "Lagos Hub"
	updated, err := svc.UpdateStatus(ctx, created.ID, StatusUpdate{Status: models.StatusOutForDelivery, Location: &hub}, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusOutForDelivery, updated.Status)
	require.Len(t, updated.TrackingHistory, 2)
	require.Equal(t, "Lagos Hub", updated.TrackingHistory[1].Location)

	tracked, err := svc.TrackPublic(ctx, created.TrackingNumber)
	require.NoError(t, err)
	require.Equal(t, created.TrackingNumber, tracked.TrackingNumber)
	require.Equal(t, updated.TrackingHistory, tracked.TrackingHistory)
}

func TestCreateShipment_GeneratesDistinctNumbers(t *testing.T) {
	svc, _ := newMemService(t)
	ctx := context.Background()

	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		sh, err := svc.CreateShipment(ctx, validInput(), nil)
		require.NoError(t, err)
		require.True(t, trackingnumber.Valid(sh.TrackingNumber))
		_, dup := seen[sh.TrackingNumber]
		require.False(t, dup, sh.TrackingNumber)
		seen[sh.TrackingNumber] = struct{}{}
	}
}

func TestCreateShipment_DuplicateLeavesStoreUnchanged(t *testing.T) {
	svc, st := newMemService(t)
	ctx := context.Background()

	in := validInput()
	in.TrackingNumber = "987654321"
	first, err := svc.CreateShipment(ctx, in, nil)
	require.NoError(t, err)

	in.RecipientName = "Someone Else"
	_, err = svc.CreateShipment(ctx, in, nil)
	require.ErrorIs(t, err, models.ErrDuplicateTrackingNumber)

	n, err := st.CountShipments(ctx, models.ShipmentFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := st.GetShipmentByTrackingNumber(ctx, "987654321")
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	require.Equal(t, "Ada Obi", got.RecipientName)
}

func TestUpdateStatus_UnknownIDLeavesStoreUnchanged(t *testing.T) {
	svc, st := newMemService(t)
	ctx := context.Background()

	sh, err := svc.CreateShipment(ctx, validInput(), nil)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, "does-not-exist", StatusUpdate{Status: models.StatusDelivered}, nil)
	require.ErrorIs(t, err, models.ErrNotFound)

	got, err := st.GetShipmentByID(ctx, sh.ID)
	require.NoError(t, err)
	require.Equal(t, sh.TrackingHistory, got.TrackingHistory)
}

func TestUpdateStatus_ConcurrentUpdatesKeepEveryEntry(t *testing.T) {
	svc, _ := newMemService(t)
	ctx := context.Background()

	sh, err := svc.CreateShipment(ctx, validInput(), nil)
	require.NoError(t, err)

	const writers = 20
	statuses := []models.ShipmentStatus{models.StatusOnHold, models.StatusOutForDelivery}
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := fmt.Sprintf("update %d", i)
			_, err := svc.UpdateStatus(ctx, sh.ID, StatusUpdate{Status: statuses[i%2], Message: &msg}, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := svc.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	require.Len(t, got.TrackingHistory, writers+1)

	last, ok := got.LastEntry()
	require.True(t, ok)
	require.Equal(t, last.Status, got.Status)
	require.Contains(t, statuses, got.Status)

	msgs := map[string]struct{}{}
	for i, e := range got.TrackingHistory[1:] {
		msgs[e.Message] = struct{}{}
		require.False(t, e.Timestamp.Before(got.TrackingHistory[i].Timestamp))
	}
	require.Len(t, msgs, writers)
}

func TestUpdateStatus_StatusAlwaysMatchesLastEntry(t *testing.T) {
	svc, _ := newMemService(t)
	ctx := context.Background()

	sh, err := svc.CreateShipment(ctx, validInput(), nil)
	require.NoError(t, err)

	for _, st := range []models.ShipmentStatus{models.StatusProcessing, "", models.StatusInTransit, models.StatusDelivered} {
		got, err := svc.UpdateStatus(ctx, sh.ID, StatusUpdate{Status: st}, &models.Identity{ID: "u-1", Username: "ops"})
		require.NoError(t, err)
		last, _ := got.LastEntry()
		require.Equal(t, last.Status, got.Status)
		require.Equal(t, "ops", last.UpdatedBy)
	}
}

func TestUpdateFields_RefreshesUpdatedAtOnly(t *testing.T) {
	svc, _ := newMemService(t)
	ctx := context.Background()

	sh, err := svc.CreateShipment(ctx, validInput(), nil)
	require.NoError(t, err)

	carrier := "DHL"
	got, err := svc.UpdateFields(ctx, sh.ID, models.ShipmentPatch{Carrier: &carrier}, nil)
	require.NoError(t, err)
	require.Equal(t, "DHL", got.Carrier)
	require.Equal(t, sh.TrackingNumber, got.TrackingNumber)
	require.Equal(t, sh.CreatedAt, got.CreatedAt)
	require.False(t, got.UpdatedAt.Before(sh.UpdatedAt))
	require.Len(t, got.TrackingHistory, 1)
}

func TestDeleteShipment_ThenTrackIsNotFound(t *testing.T) {
	svc, _ := newMemService(t)
	ctx := context.Background()

	sh, err := svc.CreateShipment(ctx, validInput(), nil)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteShipment(ctx, sh.ID, nil))

	_, err = svc.TrackPublic(ctx, sh.TrackingNumber)
	require.ErrorIs(t, err, models.ErrNotFound)
	require.ErrorIs(t, svc.DeleteShipment(ctx, sh.ID, nil), models.ErrNotFound)
}

// racingStore runs onRead once between loading a shipment by tracking number and
// handing it back, so the caller holds a snapshot older than the store.
type racingStore struct {
	*memshipment.Store
	once   sync.Once
	onRead func()
}

func (r *racingStore) GetShipmentByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	sh, err := r.Store.GetShipmentByTrackingNumber(ctx, trackingNumber)
	if err == nil && r.onRead != nil {
		r.once.Do(r.onRead)
	}
	return sh, err
}

func newCachedService(t *testing.T, repo Repository) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := rediscache.New(mr.Addr())
	t.Cleanup(func() { _ = c.Close() })
	return New(repo).WithCache(c, 10*time.Minute), mr
}

func TestTrackPublic_UpdateDuringCacheFillIsNotLost(t *testing.T) {
	st := &racingStore{Store: memshipment.New()}
	svc, mr := newCachedService(t, st)
	ctx := context.Background()

	sh, err := svc.CreateShipment(ctx, validInput(), nil)
	require.NoError(t, err)
	mr.Del(TrackKey(sh.TrackingNumber))

	st.onRead = func() {
		_, err := svc.UpdateStatus(ctx, sh.ID, StatusUpdate{Status: models.StatusOutForDelivery}, nil)
		assert.NoError(t, err)
	}

	stale, err := svc.TrackPublic(ctx, sh.TrackingNumber)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, stale.Status)

	got, err := svc.TrackPublic(ctx, sh.TrackingNumber)
	require.NoError(t, err)
	require.Equal(t, models.StatusOutForDelivery, got.Status)
	require.Len(t, got.TrackingHistory, 2)
}

func TestTrackPublic_DeleteDuringCacheFillStaysNotFound(t *testing.T) {
	st := &racingStore{Store: memshipment.New()}
	svc, mr := newCachedService(t, st)
	ctx := context.Background()

	sh, err := svc.CreateShipment(ctx, validInput(), nil)
	require.NoError(t, err)
	mr.Del(TrackKey(sh.TrackingNumber))

	st.onRead = func() {
		assert.NoError(t, svc.DeleteShipment(ctx, sh.ID, nil))
	}

	_, err = svc.TrackPublic(ctx, sh.TrackingNumber)
	require.NoError(t, err)

	_, err = svc.TrackPublic(ctx, sh.TrackingNumber)
	require.ErrorIs(t, err, models.ErrNotFound)
	require.Equal(t, time.Minute, mr.TTL(TrackKey(sh.TrackingNumber)))
}

func TestMutationsWriteCommittedStateToCache(t *testing.T) {
	svc, mr := newCachedService(t, memshipment.New())
	ctx := context.Background()

	sh, err := svc.CreateShipment(ctx, validInput(), nil)
	require.NoError(t, err)
	require.True(t, mr.Exists(TrackKey(sh.TrackingNumber)))

	_, err = svc.UpdateStatus(ctx, sh.ID, StatusUpdate{Status: models.StatusInTransit}, nil)
	require.NoError(t, err)

	got, err := svc.TrackPublic(ctx, sh.TrackingNumber)
	require.NoError(t, err)
	require.Equal(t, models.StatusInTransit, got.Status)
	require.Len(t, got.TrackingHistory, 2)
}

func TestTerminalLocked(t *testing.T) {
	require.NoError(t, TerminalLocked(models.StatusPending, models.StatusDelivered))
	require.NoError(t, TerminalLocked(models.StatusDelivered, models.StatusDelivered))
	require.ErrorIs(t, TerminalLocked(models.StatusDelivered, models.StatusPending), models.ErrTransitionNotAllowed)
	require.ErrorIs(t, TerminalLocked(models.StatusRejected, models.StatusInTransit), models.ErrTransitionNotAllowed)
	require.NoError(t, Permissive(models.StatusDelivered, models.StatusPending))
	require.NotNil(t, PolicyFor(true)(models.StatusDelivered, models.StatusPending))
	require.Nil(t, PolicyFor(false)(models.StatusDelivered, models.StatusPending))
}
