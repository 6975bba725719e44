package trackingnumber

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
)

const (
	Length = 9

	minValue = 100_000_000
	maxValue = 999_999_999

	DefaultMaxAttempts = 10
)

type Rand interface {
	Int63n(n int64) int64
}

// lockedRand makes a *rand.Rand safe for concurrent requests.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Int63n(n int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Int63n(n)
}

// ExistsFunc reports whether a tracking number is already taken.
type ExistsFunc func(ctx context.Context, trackingNumber string) (bool, error)

type Generator struct {
	r           Rand
	exists      ExistsFunc
	maxAttempts int
}

func New(exists ExistsFunc, r Rand) *Generator {
	if r == nil {
		r = &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
	}
	return &Generator{r: r, exists: exists, maxAttempts: DefaultMaxAttempts}
}

func (g *Generator) WithMaxAttempts(n int) *Generator {
	if n > 0 {
		g.maxAttempts = n
	}
	return g
}

// Valid reports whether s is exactly nine ASCII digits.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (g *Generator) draw() string {
	return strconv.FormatInt(minValue+g.r.Int63n(maxValue-minValue+1), 10)
}

// Generate draws numbers until one is not taken according to the exists check.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	return g.Assign(ctx, nil)
}

// Assign draws a free tracking number and hands it to insert. A duplicate reported by
// insert (the pre-check raced with another writer) counts as a collision and is retried.
// All draws share one attempt budget; running out yields ErrGenerationExhausted.
func (g *Generator) Assign(ctx context.Context, insert func(trackingNumber string) error) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tn := g.draw()

		if g.exists != nil {
			taken, err := g.exists(ctx, tn)
			if err != nil {
				return "", errors.Wrap(err, "check tracking number")
			}
			if taken {
				continue
			}
		}

		if insert == nil {
			return tn, nil
		}
		err := insert(tn)
		if err == nil {
			return tn, nil
		}
		if errors.Is(err, models.ErrDuplicateTrackingNumber) {
			continue
		}
		return "", err
	}
	return "", errors.Wrapf(models.ErrGenerationExhausted, "after %d attempts", g.maxAttempts)
}
