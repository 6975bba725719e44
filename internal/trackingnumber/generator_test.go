package trackingnumber

import (
	"context"
	"testing"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// seqRand replays fixed offsets into the tracking number range.
type seqRand struct {
	vals []int64
	i    int
}

func (r *seqRand) Int63n(n int64) int64 {
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v % n
}

func TestValid(t *testing.T) {
	require.True(t, Valid("123456789"))
	require.True(t, Valid("000000000"))
	require.False(t, Valid("12345678"))
	require.False(t, Valid("1234567890"))
	require.False(t, Valid("12345678a"))
	require.False(t, Valid("１２３４５６７８９"))
	require.False(t, Valid(""))
}

func TestGenerate_NineDigitsAndDistinct(t *testing.T) {
	seen := map[string]struct{}{}
	g := New(func(ctx context.Context, tn string) (bool, error) {
		_, ok := seen[tn]
		return ok, nil
	}, nil)

	for i := 0; i < 500; i++ {
		tn, err := g.Generate(context.Background())
		require.NoError(t, err)
		require.True(t, Valid(tn), tn)
		require.NotEqual(t, byte('0'), tn[0])
		_, dup := seen[tn]
		require.False(t, dup)
		seen[tn] = struct{}{}
	}
}

func TestGenerate_RetriesOnCollision(t *testing.T) {
	r := &seqRand{vals: []int64{0, 0, 5}}
	taken := map[string]bool{"100000000": true}
	calls := 0
	g := New(func(ctx context.Context, tn string) (bool, error) {
		calls++
		return taken[tn], nil
	}, r)

	tn, err := g.Generate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "100000005", tn)
	require.Equal(t, 3, calls)
}

func TestGenerate_Exhausted(t *testing.T) {
	calls := 0
	g := New(func(ctx context.Context, tn string) (bool, error) {
		calls++
		return true, nil
	}, &seqRand{vals: []int64{1}})

	_, err := g.Generate(context.Background())
	require.ErrorIs(t, err, models.ErrGenerationExhausted)
	require.Equal(t, DefaultMaxAttempts, calls)
}

func TestGenerate_ExistsError(t *testing.T) {
	want := errors.New("db down")
	g := New(func(ctx context.Context, tn string) (bool, error) { return false, want }, nil)

	_, err := g.Generate(context.Background())
	require.ErrorIs(t, err, want)
	require.NotErrorIs(t, err, models.ErrGenerationExhausted)
}

func TestAssign_RetriesDuplicateFromInsert(t *testing.T) {
	g := New(nil, &seqRand{vals: []int64{7, 8}}).WithMaxAttempts(3)

	var inserted []string
	tn, err := g.Assign(context.Background(), func(tn string) error {
		inserted = append(inserted, tn)
		if len(inserted) == 1 {
			return errors.Wrap(models.ErrDuplicateTrackingNumber, "insert shipment")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "100000008", tn)
	require.Equal(t, []string{"100000007", "100000008"}, inserted)
}

func TestAssign_ExhaustedByInsertDuplicates(t *testing.T) {
	g := New(nil, nil).WithMaxAttempts(4)
	calls := 0
	_, err := g.Assign(context.Background(), func(string) error {
		calls++
		return models.ErrDuplicateTrackingNumber
	})
	require.ErrorIs(t, err, models.ErrGenerationExhausted)
	require.Equal(t, 4, calls)
}

func TestAssign_OtherInsertErrorStops(t *testing.T) {
	g := New(nil, nil)
	want := errors.New("boom")
	calls := 0
	_, err := g.Assign(context.Background(), func(string) error {
		calls++
		return want
	})
	require.ErrorIs(t, err, want)
	require.Equal(t, 1, calls)
}

func TestAssign_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil, nil).Assign(ctx, func(string) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
