package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"connector/internal/binance"
	"connector/internal/candle"
	"connector/internal/catalog"
	"connector/internal/model"
	"connector/internal/model/enum"
	"connector/internal/obs"
	"connector/internal/reconcile"
	"connector/internal/store/memory"
	"connector/pkg/exception"
	"connector/pkg/rest"
	"connector/pkg/websocket"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case msg := <-c.in:
		return websocket.MessageText, msg, nil
	case <-c.closed:
		return 0, nil, exception.ErrWebSocketConnectionClose
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, _ websocket.MessageType, payload []byte) error {
	c.mu.Lock()
	c.writes = append(c.writes, append([]byte(nil), payload...))
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close(websocket.CloseCode, string) error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) frames(t *testing.T) []websocket.ControlFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := make([]websocket.ControlFrame, 0, len(c.writes))
	for _, w := range c.writes {
		var f websocket.ControlFrame
		require.NoError(t, sonic.Unmarshal(w, &f))
		frames = append(frames, f)
	}
	return frames
}

type fixture struct {
	venue   binance.Venue
	client  *rest.Client
	catalog *catalog.Catalog
	candles *candle.Engine
	symbols []string
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	venue, err := binance.New(enum.MarketFutures, binance.Endpoints{REST: srv.URL, PrivateWS: "ws://private"})
	require.NoError(t, err)
	client := rest.New(rest.Option{APIKey: "key", Secret: "secret", MaxTries: 1})

	cat := catalog.New(venue, client)
	symbols := make([]string, 0, 12)
	infos := make(map[string]model.SymbolInfo, 12)
	for _, base := range []string{"BTC", "ETH", "BNB", "SOL", "XRP", "ADA", "DOGE", "DOT", "LTC", "LINK", "AVAX", "TRX"} {
		s := base + "USDT"
		symbols = append(symbols, s)
		infos[s] = model.SymbolInfo{Symbol: s, LotSize: decimal.RequireFromString("0.001")}
	}
	cat.ReplaceSymbols(infos)

	candles, err := candle.New(candle.Option{Store: memory.New(), Source: binance.NewKlines(venue, client)})
	require.NoError(t, err)
	return &fixture{venue: venue, client: client, catalog: cat, candles: candles, symbols: symbols}
}

func marketData(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/depth":
		_, _ = w.Write([]byte(`{"lastUpdateId":10,"bids":[["100","1"]],"asks":[["101","1"]]}`))
	case "/trades":
		_, _ = w.Write([]byte(`[{"id":1,"price":"100","qty":"1","time":1704067200000,"isBuyerMaker":false}]`))
	case "/klines":
		_, _ = w.Write([]byte(`[]`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestPublicSubscribePaginates(t *testing.T) {
	f := newFixture(t, marketData)
	conn := newFakeConn()
	p, err := NewPublic(PublicOption{
		Catalog:         f.catalog,
		Candles:         f.candles,
		Connect:         func(context.Context) (websocket.Conn, error) { return conn, nil },
		MessageInterval: time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()
	require.Eventually(t, p.Session().Connected, time.Second, time.Millisecond)

	feeds := []enum.Feed{enum.FeedDepth, enum.FeedTrade, enum.FeedKline1m}
	require.NoError(t, p.Subscribe(ctx, f.symbols, feeds))

	frames := conn.frames(t)
	require.Len(t, frames, 2)
	assert.Len(t, frames[0].Params, 30)
	assert.Len(t, frames[1].Params, 6)
	assert.Contains(t, frames[0].Params, "btcusdt@depth")
	assert.Contains(t, frames[1].Params, "trxusdt@kline_1m")

	bid, ask, ok := f.catalog.Book("BTCUSDT").Best()
	require.True(t, ok)
	assert.True(t, bid.Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, ask.Price.Equal(decimal.NewFromInt(101)))
	assert.Len(t, f.catalog.Trades("ETHUSDT"), 1)

	stale := `{"e":"depthUpdate","E":1,"s":"BTCUSDT","U":1,"u":5,"b":[["100","0"]],"a":[]}`
	require.NoError(t, p.HandleMessage(ctx, []byte(stale)))
	assert.Len(t, f.catalog.Book("BTCUSDT").Bids(), 1, "updates older than the snapshot are dropped")

	require.NoError(t, p.Unsubscribe(ctx, []string{"BTCUSDT"}, []enum.Feed{enum.FeedDepth}))
	assert.Len(t, f.catalog.Trades("BTCUSDT"), 1, "a symbol with streams left keeps its state")
	require.NoError(t, p.Unsubscribe(ctx, []string{"BTCUSDT"}, []enum.Feed{enum.FeedTrade, enum.FeedKline1m}))
	assert.Empty(t, f.catalog.Trades("BTCUSDT"))
	assert.Len(t, p.Session().Streams(), 33)
}

func TestPublicSubscribeUnknownSymbol(t *testing.T) {
	f := newFixture(t, marketData)
	p, err := NewPublic(PublicOption{Catalog: f.catalog, Candles: f.candles})
	require.NoError(t, err)

	err = p.Subscribe(context.Background(), []string{"NOPEUSDT"}, []enum.Feed{enum.FeedTrade})
	assert.ErrorIs(t, err, exception.ErrUnknownSymbol)
	assert.Empty(t, p.Session().Streams())
}

func TestPublicHandleMessage(t *testing.T) {
	f := newFixture(t, marketData)
	metrics := obs.NewMetrics()
	p, err := NewPublic(PublicOption{Catalog: f.catalog, Candles: f.candles, Metrics: metrics})
	require.NoError(t, err)
	ctx := context.Background()

	trades := make(chan model.Trade, 1)
	p.OnTrade("test", "BTCUSDT", func(_ context.Context, tr model.Trade) { trades <- tr })

	messages := []string{
		`{"e":"kline","E":1,"s":"BTCUSDT","k":{"t":1704067200000,"T":1704067259999,"s":"BTCUSDT","i":"1m","L":9,"o":"1","c":"2","h":"3","l":"0.5","v":"10","V":"4","q":"20","Q":"8","x":true}}`,
		`{"e":"trade","E":1,"s":"BTCUSDT","t":7,"p":"100.5","q":"0.1","T":1704067200000,"m":true,"M":true}`,
		`{"e":"depthUpdate","E":1,"s":"BTCUSDT","U":1,"u":5,"b":[["100","1"]],"a":[["101","2"]]}`,
		`{"e":"markPriceUpdate","E":1,"s":"ETHUSDT","p":"2300.5","P":"2301","i":"2300","r":"0.0001","T":1704096000000}`,
		`{"result":null,"id":1}`,
		`{"e":"24hrTicker","E":1,"s":"BTCUSDT"}`,
	}
	for _, msg := range messages {
		require.NoError(t, p.HandleMessage(ctx, []byte(msg)), msg)
	}
	assert.Error(t, p.HandleMessage(ctx, []byte(`{"e":`)))

	snap := metrics.Snapshot()
	assert.Equal(t, map[string]uint64{"kline": 1, "trade": 1, "depthUpdate": 1, "markPriceUpdate": 1, "24hrTicker": 1}, snap.Events)
	assert.Equal(t, uint64(1), snap.Dropped)
	assert.Equal(t, uint64(1), snap.Skipped)

	series := f.candles.Candles("BTCUSDT", model.Timeframe1m)
	require.Len(t, series, 1)
	assert.True(t, series[0].Close.Equal(decimal.NewFromInt(2)))
	assert.True(t, series[0].Volume.Equal(decimal.NewFromInt(10)))
	assert.True(t, f.candles.DollarNotional("BTCUSDT").Equal(decimal.NewFromInt(20)))

	p.Wait()
	tr := <-trades
	assert.Equal(t, int64(7), tr.ID)
	assert.Equal(t, enum.OrderSideSell, tr.Side)
	require.Len(t, f.catalog.Trades("BTCUSDT"), 1)

	bid, ask, ok := f.catalog.Book("BTCUSDT").Best()
	require.True(t, ok)
	assert.True(t, bid.Quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, ask.Quantity.Equal(decimal.NewFromInt(2)))

	mark, ok := f.catalog.MarkPrice("ETHUSDT")
	require.True(t, ok)
	assert.True(t, mark.Equal(decimal.RequireFromString("2300.5")))
	mark, ok = f.catalog.MarkPrice("BTCUSDT")
	require.True(t, ok)
	assert.True(t, mark.Equal(decimal.NewFromInt(2)), "kline closes move the mark price")

	for _, stream := range []string{"btcusdt@kline_1m", "btcusdt@trade", "btcusdt@depth", "ethusdt@markPrice"} {
		assert.False(t, p.LastSeen(stream).IsZero(), stream)
	}
	assert.True(t, p.LastSeen("btcusdt@aggTrade").IsZero())

	p.RemoveSubscriber("test")
	require.NoError(t, p.HandleMessage(ctx, []byte(messages[1])))
	p.Wait()
	assert.Empty(t, trades)
}

func TestPrivateListenKeyLifecycle(t *testing.T) {
	var creates, keepAlives, closes atomic.Int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/listenKey" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "key", r.Header.Get(rest.HeaderAPIKey))
		switch r.Method {
		case http.MethodPost:
			creates.Add(1)
		case http.MethodPut:
			keepAlives.Add(1)
		case http.MethodDelete:
			closes.Add(1)
		}
		_, _ = w.Write([]byte(`{"listenKey":"abc"}`))
	})

	engine := reconcile.New(reconcile.Option{Client: f.client, Catalog: f.catalog})
	dialed := make(chan *fakeConn, 4)
	var urls []string
	var mu sync.Mutex

	p, err := NewPrivate(PrivateOption{
		Venue:  f.venue,
		Client: f.client,
		Engine: engine,
		Dial: func(_ context.Context, url string) (websocket.Conn, error) {
			mu.Lock()
			urls = append(urls, url)
			mu.Unlock()
			conn := newFakeConn()
			dialed <- conn
			return conn, nil
		},
		KeepAlive: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	first := waitDial(t, dialed)
	assert.Equal(t, "abc", p.ListenKey())

	first.in <- []byte(`{"e":"ORDER_TRADE_UPDATE","E":1,"T":2,"o":{"s":"BTCUSDT","c":"cid","S":"BUY","o":"LIMIT","q":"1","p":"100","ap":"0","sp":"0","x":"NEW","X":"NEW","i":42,"z":"0","n":"0","T":2,"t":0,"R":false,"ps":"BOTH"}}`)
	require.Eventually(t, func() bool {
		_, ok := engine.Order("BTCUSDT", 42)
		return ok
	}, time.Second, time.Millisecond)

	first.in <- []byte(`{"e":"listenKeyExpired","E":1}`)
	waitDial(t, dialed)
	require.Eventually(t, func() bool { return keepAlives.Load() > 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, int32(2), creates.Load())
	assert.Equal(t, int32(1), closes.Load())
	assert.False(t, engine.LastSeen(binance.EventListenKeyExpired).IsZero())

	mu.Lock()
	defer mu.Unlock()
	for _, url := range urls {
		assert.True(t, strings.HasSuffix(url, "ws://private/abc"), url)
	}
}

func waitDial(t *testing.T, dialed chan *fakeConn) *fakeConn {
	t.Helper()
	select {
	case conn := <-dialed:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection dialed")
		return nil
	}
}
