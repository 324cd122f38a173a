// Package obs counts stream traffic and reports it to the log.
package obs

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
)

// Metrics collects lightweight counters and latency stats of the streams.
// A nil *Metrics records nothing.
type Metrics struct {
	mu     sync.RWMutex
	events map[string]*atomic.Uint64

	dropped atomic.Uint64
	skipped atomic.Uint64

	eventLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count atomic.Uint64
	sum   atomic.Uint64
	min   atomic.Uint64
	max   atomic.Uint64
}

type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot is a point-in-time copy of the metrics.
type Snapshot struct {
	Events       map[string]uint64
	Dropped      uint64
	Skipped      uint64
	EventLatency LatencySnapshot
}

func NewMetrics() *Metrics {
	return &Metrics{events: make(map[string]*atomic.Uint64)}
}

// ObserveEvent counts one message of eventType and, when the venue stamped
// it, the delay between the venue event time and now.
func (m *Metrics) ObserveEvent(eventType string, eventTime time.Time) {
	if m == nil {
		return
	}
	m.counter(eventType).Add(1)
	if !eventTime.IsZero() {
		m.eventLatency.Observe(time.Since(eventTime))
	}
}

// IncDropped records a message that failed to decode or apply.
func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.dropped.Add(1)
}

// IncSkipped records a message of a type nobody consumes.
func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.skipped.Add(1)
}

func (m *Metrics) counter(eventType string) *atomic.Uint64 {
	m.mu.RLock()
	c, ok := m.events[eventType]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.events[eventType]; !ok {
		c = &atomic.Uint64{}
		m.events[eventType] = c
	}
	return c
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	events := make(map[string]uint64, len(m.events))
	for k, c := range m.events {
		events[k] = c.Load()
	}
	m.mu.RUnlock()

	return Snapshot{
		Events:       events,
		Dropped:      m.dropped.Load(),
		Skipped:      m.skipped.Load(),
		EventLatency: m.eventLatency.Snapshot(),
	}
}

// Report logs a snapshot every interval until ctx is done.
func (m *Metrics) Report(ctx context.Context, interval time.Duration) {
	if m == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.Snapshot()
			logs.Infof("stream metrics, events: %s, dropped: %d, skipped: %d, latency avg: %s, max: %s",
				s.formatEvents(), s.Dropped, s.Skipped, s.EventLatency.Avg, s.EventLatency.Max)
		}
	}
}

func (s Snapshot) formatEvents() string {
	var b strings.Builder
	for i, k := range slices.Sorted(maps.Keys(s.Events)) {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(formatUint(s.Events[k]))
	}
	return b.String()
}

func formatUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Observe records a duration sample. Negative samples, e.g. from clock skew,
// are ignored.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	l.count.Add(1)
	l.sum.Add(nanos)

	for {
		cur := l.min.Load()
		if cur != 0 && nanos >= cur {
			break
		}
		if l.min.CompareAndSwap(cur, nanos) {
			break
		}
	}
	for {
		cur := l.max.Load()
		if nanos <= cur {
			break
		}
		if l.max.CompareAndSwap(cur, nanos) {
			break
		}
	}
}

func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := l.count.Load()
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(l.min.Load()),
		Max:   time.Duration(l.max.Load()),
		Avg:   time.Duration(l.sum.Load() / count),
	}
}
