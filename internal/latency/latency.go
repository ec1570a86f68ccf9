// Package latency models the delay between a strategy emitting a signal and
// the exchange acting on it.
package latency

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Yusufzhafir/hftsim/pkg/util"
)

const (
	DefaultMin = 100 * time.Microsecond
	DefaultMax = 500 * time.Microsecond
)

// Generator hands out one delay per call. It never sleeps itself.
type Generator interface {
	Delay() time.Duration
}

// Uniform draws whole microseconds uniformly from [min, max].
type Uniform struct {
	mu       sync.Mutex
	rng      *rand.Rand
	min, max time.Duration
}

// NewUniform builds a generator over [min, max]. A zero seed picks a random one.
func NewUniform(min, max time.Duration, seed uint64) (*Uniform, error) {
	if min < 0 || max < min {
		return nil, fmt.Errorf("latency range [%s, %s] is invalid", min, max)
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Uniform{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		min: min.Truncate(time.Microsecond),
		max: max.Truncate(time.Microsecond),
	}, nil
}

func (u *Uniform) Delay() time.Duration {
	span := int64((u.max - u.min) / time.Microsecond)
	u.mu.Lock()
	n := u.rng.Int64N(span + 1)
	u.mu.Unlock()
	return u.min + time.Duration(n)*time.Microsecond
}

func (u *Uniform) Bounds() (time.Duration, time.Duration) { return u.min, u.max }

// Fixed always returns the same delay.
type Fixed time.Duration

func (f Fixed) Delay() time.Duration { return time.Duration(f) }

// Zero disables latency.
const Zero = Fixed(0)

// Sleep blocks for d on clock or until ctx is done.
func Sleep(ctx context.Context, clock util.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
