// Package throttle paces outbound REST calls by the usage weight the venue
// reports on each response.
package throttle

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yanun0323/logs"
)

// UsedWeightHeaders are checked in order; the first present one wins.
var UsedWeightHeaders = []string{
	"X-Mbx-Used-Weight-1m",
	"X-Sapi-Used-Weight-1m",
	"X-Mbx-Used-Weight",
}

const _retryAfterHeader = "Retry-After"

// Throttler serializes requests for one venue and delays each of them by the
// fraction of the weight window already used.
type Throttler struct {
	slot chan struct{}

	mu          sync.Mutex
	weightLimit int
	rawLimit    int
	initialized bool
	last        http.Header
}

// New creates a throttler that does not delay anything until Init is called.
func New() *Throttler {
	return &Throttler{
		slot: make(chan struct{}, 1),
	}
}

// Init sets the per-window limits read from exchange metadata.
func (t *Throttler) Init(weightLimit, rawLimit int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rawLimit <= 0 {
		rawLimit = weightLimit
	}
	t.weightLimit = weightLimit
	t.rawLimit = rawLimit
	t.initialized = weightLimit > 0
	logs.Infof("throttle initialized, weight limit: %d, raw limit: %d", weightLimit, rawLimit)
}

// Limits returns the configured weight and raw request limits.
func (t *Throttler) Limits() (weight int, raw int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.weightLimit, t.rawLimit
}

// Observe records the headers of the latest response. A nil header keeps the
// previous observation.
func (t *Throttler) Observe(header http.Header) {
	if header == nil {
		return
	}
	t.mu.Lock()
	t.last = header.Clone()
	t.mu.Unlock()
}

// Delay returns how long the next request has to wait.
func (t *Throttler) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized || t.last == nil {
		return 0
	}

	if retryAfter := strings.TrimSpace(t.last.Get(_retryAfterHeader)); retryAfter != "" {
		if sec, err := strconv.ParseFloat(retryAfter, 64); err == nil && sec >= 0 {
			return time.Duration(sec * float64(time.Second))
		}
	}

	used := t.weightLimit
	for _, name := range UsedWeightHeaders {
		value := t.last.Get(name)
		if value == "" {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			used = n
			break
		}
	}

	return time.Duration(float64(used) / float64(t.weightLimit) * float64(time.Second))
}

// Acquire takes the venue slot and waits out the current delay. The returned
// release func must be called exactly once with the response headers (nil when
// no response arrived).
func (t *Throttler) Acquire(ctx context.Context) (func(http.Header), error) {
	select {
	case t.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := sleep(ctx, t.Delay()); err != nil {
		<-t.slot
		return nil, err
	}

	var once sync.Once
	return func(header http.Header) {
		once.Do(func() {
			t.Observe(header)
			<-t.slot
		})
	}, nil
}

// Wait blocks the calling goroutine for the current delay without taking the
// venue slot.
func (t *Throttler) Wait(ctx context.Context) error {
	return sleep(ctx, t.Delay())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	logs.Debugf("throttle request for %s", d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
