package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"connector/internal/model/enum"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) handler(name string) Handler[string] {
	return func(_ context.Context, event string) {
		r.mu.Lock()
		r.got = append(r.got, name+":"+event)
		r.mu.Unlock()
	}
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func TestDispatch(t *testing.T) {
	reg := New[string]()
	rec := &recorder{}
	reg.Add("a", enum.FeedTrade, "BTCUSDT", rec.handler("a"))
	reg.Add("b", enum.FeedTrade, AllSymbols, rec.handler("b"))
	reg.Add("c", enum.FeedDepth, "BTCUSDT", rec.handler("c"))
	reg.Add("d", enum.FeedTrade, "ETHUSDT", nil)
	require.Equal(t, 3, reg.Len())

	testCases := []struct {
		desc   string
		feed   enum.Feed
		symbol string
		want   []string
	}{
		{desc: "scoped and all", feed: enum.FeedTrade, symbol: "BTCUSDT", want: []string{"a:x", "b:x"}},
		{desc: "all only", feed: enum.FeedTrade, symbol: "ETHUSDT", want: []string{"b:x"}},
		{desc: "other feed", feed: enum.FeedDepth, symbol: "BTCUSDT", want: []string{"c:x"}},
		{desc: "no match", feed: enum.FeedMarkPrice, symbol: "BTCUSDT", want: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			rec.got = nil
			n := reg.Dispatch(context.Background(), tc.feed, tc.symbol, "x")
			reg.Wait()
			assert.Equal(t, len(tc.want), n)
			assert.ElementsMatch(t, tc.want, rec.events())
		})
	}
}

func TestRemoveBySubscriber(t *testing.T) {
	reg := New[int]()
	noop := func(context.Context, int) {}
	reg.Add("strategy", enum.FeedOrder, "BTCUSDT", noop)
	reg.Add("strategy", enum.FeedPosition, AllSymbols, noop)
	reg.Add("monitor", enum.FeedOrder, "BTCUSDT", noop)

	assert.Equal(t, 2, reg.Remove("strategy"))
	assert.Equal(t, 0, reg.Remove("strategy"))
	assert.Equal(t, 1, reg.Len())
	assert.Len(t, reg.Handlers(enum.FeedOrder, "BTCUSDT"), 1)
	assert.Empty(t, reg.Handlers(enum.FeedPosition, "BTCUSDT"))
}

func TestDispatchDoesNotBlock(t *testing.T) {
	reg := New[int]()
	release := make(chan struct{})
	done := make(chan int, 2)
	reg.Add("slow", enum.FeedTrade, AllSymbols, func(_ context.Context, v int) {
		<-release
		done <- v
	})
	reg.Add("panics", enum.FeedTrade, AllSymbols, func(context.Context, int) { panic("boom") })

	start := time.Now()
	reg.Dispatch(context.Background(), enum.FeedTrade, "BTCUSDT", 1)
	reg.Dispatch(context.Background(), enum.FeedTrade, "BTCUSDT", 2)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
	reg.Wait()
	assert.ElementsMatch(t, []int{1, 2}, []int{<-done, <-done})
}

func TestDispatchClonesEvents(t *testing.T) {
	type box struct{ v int }
	reg := NewCloning(func(b *box) *box {
		c := *b
		return &c
	})

	got := make(chan *box, 2)
	for _, name := range []string{"a", "b"} {
		reg.Add(name, enum.FeedPosition, AllSymbols, func(_ context.Context, b *box) {
			b.v++
			got <- b
		})
	}

	event := &box{v: 1}
	require.Equal(t, 2, reg.Dispatch(context.Background(), enum.FeedPosition, "BTCUSDT", event))
	reg.Wait()

	first, second := <-got, <-got
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, first.v)
	assert.Equal(t, 2, second.v)
	assert.Equal(t, 1, event.v)
}
