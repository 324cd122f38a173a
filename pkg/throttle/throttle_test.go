package throttle

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestDelay(t *testing.T) {
	testCases := []struct {
		desc   string
		init   bool
		header http.Header
		want   time.Duration
	}{
		{desc: "not initialized", header: header("X-MBX-USED-WEIGHT-1M", "600"), want: 0},
		{desc: "no prior response", init: true, want: 0},
		{desc: "half window used", init: true, header: header("X-MBX-USED-WEIGHT-1M", "600"), want: 500 * time.Millisecond},
		{desc: "sapi header", init: true, header: header("X-SAPI-USED-WEIGHT-1M", "120"), want: 100 * time.Millisecond},
		{desc: "legacy header", init: true, header: header("X-MBX-USED-WEIGHT", "12"), want: 10 * time.Millisecond},
		{desc: "first header wins", init: true, header: header("X-MBX-USED-WEIGHT-1M", "1200", "X-MBX-USED-WEIGHT", "0"), want: time.Second},
		{desc: "missing header uses limit", init: true, header: header("Content-Type", "application/json"), want: time.Second},
		{desc: "retry after overrides", init: true, header: header("X-MBX-USED-WEIGHT-1M", "600", "Retry-After", "3"), want: 3 * time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			th := New()
			if tc.init {
				th.Init(1200, 0)
			}
			th.Observe(tc.header)

			if got := th.Delay(); got != tc.want {
				t.Fatalf("delay mismatch: got %v want %v", got, tc.want)
			}
		})
	}
}

func TestInitDefaultsRawLimit(t *testing.T) {
	th := New()
	th.Init(2400, 0)
	weight, raw := th.Limits()
	assert.Equal(t, 2400, weight)
	assert.Equal(t, 2400, raw)
}

func TestObserveNilKeepsPrevious(t *testing.T) {
	th := New()
	th.Init(1200, 6100)
	th.Observe(header("X-MBX-USED-WEIGHT-1M", "600"))
	th.Observe(nil)
	assert.Equal(t, 500*time.Millisecond, th.Delay())
}

func TestAcquireSerializes(t *testing.T) {
	th := New()
	ctx := context.Background()

	release, err := th.Acquire(ctx)
	require.NoError(t, err)

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		r, err := th.Acquire(ctx)
		if err != nil {
			return
		}
		acquired.Store(true)
		r(nil)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, acquired.Load())

	release(header("X-MBX-USED-WEIGHT-1M", "1"))
	release(nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second acquire did not proceed")
	}
	assert.True(t, acquired.Load())
}

func TestAcquireHonoursContext(t *testing.T) {
	th := New()
	th.Init(10, 10)
	th.Observe(header("Retry-After", "60"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := th.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	th.Observe(header("X-MBX-USED-WEIGHT-1M", "0"))
	release, err := th.Acquire(context.Background())
	require.NoError(t, err)
	release(nil)
}

func TestWaitDoesNotBlockOthers(t *testing.T) {
	th := New()
	th.Init(1, 1)
	th.Observe(header("X-MBX-USED-WEIGHT-1M", "1"))

	ctx, cancel := context.WithCancel(context.Background())
	waiting := make(chan error, 1)
	go func() { waiting <- th.Wait(ctx) }()

	tick := time.NewTimer(10 * time.Millisecond)
	select {
	case <-tick.C:
	case <-waiting:
		t.Fatal("wait returned before its delay")
	}

	cancel()
	require.ErrorIs(t, <-waiting, context.Canceled)
}
