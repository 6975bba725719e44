package memshipment

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ShipBox/internal/identity"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShipment(id, tn string, createdAt time.Time, status models.ShipmentStatus) *models.Shipment {
	return &models.Shipment{
		ID:             id,
		TrackingNumber: tn,
		Details:        models.Details{RecipientName: "R", Origin: "Lagos", Destination: "Accra"},
		Status:         status,
		TrackingHistory: []models.HistoryEntry{{
			Status: status, Location: "Lagos", Message: "Shipment created", Timestamp: createdAt, UpdatedBy: "Admin",
		}},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestStore_ListLimitClamped(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < maxListLimit+20; i++ {
		id := fmt.Sprintf("s-%d", i)
		require.NoError(t, s.CreateShipment(ctx, newShipment(id, fmt.Sprintf("%09d", 100000000+i), base.Add(time.Duration(i)*time.Millisecond), models.StatusPending)))
	}

	list, err := s.ListShipments(ctx, models.ListOptions{Limit: 1000})
	require.NoError(t, err)
	require.Len(t, list, maxListLimit)

	list, err = s.ListShipments(ctx, models.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, defaultListLimit)
}

func TestStore_CreateAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateShipment(ctx, newShipment("a", "123456789", now, models.StatusPending)))

	got, err := s.GetShipmentByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "123456789", got.TrackingNumber)

	got, err = s.GetShipmentByTrackingNumber(ctx, "123456789")
	require.NoError(t, err)
	require.Equal(t, "a", got.ID)

	// returned values are copies
	got.TrackingHistory[0].Message = "mutated"
	again, _ := s.GetShipmentByID(ctx, "a")
	require.Equal(t, "Shipment created", again.TrackingHistory[0].Message)

	ok, err := s.TrackingNumberExists(ctx, "123456789")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.GetShipmentByID(ctx, "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.GetShipmentByTrackingNumber(ctx, "000000000")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestStore_CreateDuplicateTrackingNumber(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateShipment(ctx, newShipment("a", "123456789", now, models.StatusPending)))
	err := s.CreateShipment(ctx, newShipment("b", "123456789", now, models.StatusPending))
	require.ErrorIs(t, err, models.ErrDuplicateTrackingNumber)

	n, _ := s.CountShipments(ctx, models.ShipmentFilter{})
	require.Equal(t, int64(1), n)
	_, err = s.GetShipmentByID(ctx, "b")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestStore_AppendHistory(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.CreateShipment(ctx, newShipment("a", "123456789", now, models.StatusPending)))

	later := now.Add(time.Minute)
	sh, err := s.AppendHistory(ctx, "a", func(cur *models.Shipment) (models.HistoryEntry, error) {
		require.Equal(t, models.StatusPending, cur.Status)
		return models.HistoryEntry{Status: models.StatusOnHold, Location: cur.Origin, Timestamp: later}, nil
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusOnHold, sh.Status)
	require.Len(t, sh.TrackingHistory, 2)
	require.Equal(t, later, sh.UpdatedAt)

	want := errors.New("rejected")
	_, err = s.AppendHistory(ctx, "a", func(*models.Shipment) (models.HistoryEntry, error) {
		return models.HistoryEntry{}, want
	})
	require.ErrorIs(t, err, want)
	sh, _ = s.GetShipmentByID(ctx, "a")
	require.Len(t, sh.TrackingHistory, 2)

	_, err = s.AppendHistory(ctx, "missing", func(*models.Shipment) (models.HistoryEntry, error) {
		t.Fatal("builder must not run for a missing shipment")
		return models.HistoryEntry{}, nil
	})
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestStore_AppendHistory_Concurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateShipment(ctx, newShipment("a", "123456789", time.Now().UTC(), models.StatusPending)))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendHistory(ctx, "a", func(cur *models.Shipment) (models.HistoryEntry, error) {
				return models.HistoryEntry{Status: models.StatusInTransit, Message: fmt.Sprint(i), Timestamp: time.Now()}, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	sh, err := s.GetShipmentByID(ctx, "a")
	require.NoError(t, err)
	require.Len(t, sh.TrackingHistory, n+1)
}

func TestStore_UpdateShipment(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.CreateShipment(ctx, newShipment("a", "123456789", now, models.StatusPending)))

	carrier := "DHL"
	sh, err := s.UpdateShipment(ctx, "a", models.ShipmentPatch{Carrier: &carrier}, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "DHL", sh.Carrier)
	require.Equal(t, "R", sh.RecipientName)
	require.Len(t, sh.TrackingHistory, 1)
	require.Equal(t, now.Add(time.Hour), sh.UpdatedAt)

	_, err = s.UpdateShipment(ctx, "missing", models.ShipmentPatch{}, now)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestStore_ListCountDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, s.CreateShipment(ctx, newShipment("a", "100000001", base, models.StatusPending)))
	require.NoError(t, s.CreateShipment(ctx, newShipment("b", "100000002", base.Add(time.Second), models.StatusDelivered)))
	require.NoError(t, s.CreateShipment(ctx, newShipment("c", "100000003", base.Add(2*time.Second), models.StatusOnHold)))
	// same timestamp as c, created later
	require.NoError(t, s.CreateShipment(ctx, newShipment("d", "100000004", base.Add(2*time.Second), models.StatusPending)))

	list, err := s.ListShipments(ctx, models.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"d", "c", "b", "a"}, ids(list))

	list, err = s.ListShipments(ctx, models.ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, ids(list))

	list, err = s.ListShipments(ctx, models.ListOptions{ShipmentFilter: models.ShipmentFilter{Statuses: []models.ShipmentStatus{models.StatusPending}}})
	require.NoError(t, err)
	require.Equal(t, []string{"d", "a"}, ids(list))

	list, err = s.ListShipments(ctx, models.ListOptions{Offset: 10})
	require.NoError(t, err)
	require.Empty(t, list)

	n, err := s.CountShipments(ctx, models.ShipmentFilter{Statuses: models.ActiveStatuses})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	require.NoError(t, s.DeleteShipment(ctx, "a"))
	require.ErrorIs(t, s.DeleteShipment(ctx, "a"), models.ErrNotFound)
	ok, _ := s.TrackingNumberExists(ctx, "100000001")
	require.False(t, ok)

	n, _ = s.CountShipments(ctx, models.ShipmentFilter{})
	require.Equal(t, int64(3), n)
}

func TestStore_Users(t *testing.T) {
	s := New()
	ctx := context.Background()

	u := &models.User{ID: "u1", Username: "admin", PasswordHash: "h", IsAdmin: true, Active: true}
	require.NoError(t, s.CreateUser(ctx, u))
	require.ErrorIs(t, s.CreateUser(ctx, &models.User{ID: "u2", Username: "admin"}), identity.ErrUserExists)

	got, err := s.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, "u1", got.ID)

	got, err = s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.True(t, got.IsAdmin)

	_, err = s.GetUserByID(ctx, "nope")
	require.ErrorIs(t, err, identity.ErrUserNotFound)
	_, err = s.GetUserByUsername(ctx, "nope")
	require.ErrorIs(t, err, identity.ErrUserNotFound)
}

func ids(list []*models.Shipment) []string {
	out := make([]string, 0, len(list))
	for _, sh := range list {
		out = append(out, sh.ID)
	}
	return out
}
