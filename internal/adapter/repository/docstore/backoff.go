package docstore

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Delay returns the wait before retry number attempt (0-based):
// min(initial*multiplier^attempt, max) plus up to a quarter of that as jitter.
// A multiplier below 1 is treated as 1. A non-positive max disables the cap.
func Delay(attempt int, initial time.Duration, multiplier float64, max time.Duration, rnd *rand.Rand) time.Duration {
	if initial <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if multiplier < 1 || math.IsNaN(multiplier) {
		multiplier = 1
	}

	f := float64(initial) * math.Pow(multiplier, float64(attempt))
	computed := time.Duration(math.MaxInt64)
	if f < float64(math.MaxInt64) {
		computed = time.Duration(f)
	}
	if max > 0 && computed > max {
		computed = max
	}
	if computed <= 0 {
		computed = 1
	}

	var jitter time.Duration
	if quarter := int64(computed / 4); quarter > 0 && rnd != nil {
		jitter = time.Duration(rnd.Int64N(quarter + 1))
	}
	if computed > math.MaxInt64-jitter {
		return math.MaxInt64
	}
	return computed + jitter
}

// Backoff adapts Delay to backoff.BackOff.
type Backoff struct {
	initial    time.Duration
	multiplier float64
	max        time.Duration

	mu      sync.Mutex
	attempt int
	rnd     *rand.Rand
}

var _ backoff.BackOff = (*Backoff)(nil)

// NewBackoff creates a Backoff for the delays of p.
func NewBackoff(p Policy) *Backoff {
	return newBackoffWithRand(p, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())))
}

func newBackoffWithRand(p Policy, rnd *rand.Rand) *Backoff {
	return &Backoff{
		initial:    p.InitialBackoff,
		multiplier: p.Multiplier,
		max:        p.MaxBackoff,
		rnd:        rnd,
	}
}

// NextBackOff returns the next delay. It never returns backoff.Stop;
// the attempt limit is applied by backoff.WithMaxRetries.
func (b *Backoff) NextBackOff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := Delay(b.attempt, b.initial, b.multiplier, b.max, b.rnd)
	b.attempt++
	return d
}

// Reset restarts the delay sequence.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}
