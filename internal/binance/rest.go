package binance

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"connector/internal/model"
	"connector/internal/model/enum"
	"connector/pkg/exception"
	"connector/pkg/rest"

	"github.com/yanun0323/errors"
)

// Klines fetches historical candles over REST.
type Klines struct {
	venue  Venue
	client *rest.Client
}

func NewKlines(v Venue, c *rest.Client) *Klines {
	return &Klines{venue: v, client: c}
}

// FetchCandles returns at most limit closed candles with open time in
// [start, end], ascending. A zero start leaves the window open to the left.
func (k *Klines) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time, limit int) ([]model.Candle, error) {
	if limit <= 0 || limit > MaxCandles {
		limit = MaxCandles
	}

	params := url.Values{
		"symbol":   {symbol},
		"interval": {string(tf)},
		"endTime":  {strconv.FormatInt(end.UnixMilli(), 10)},
		"limit":    {strconv.Itoa(limit)},
	}
	if !start.IsZero() {
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}

	rows, err := rest.Decode[[][]any](ctx, k.client, rest.Request{
		URL:    k.venue.BaseURL() + "/klines",
		Params: params,
	})
	if err != nil {
		return nil, errors.Wrap(err, "fetch klines").With("symbol", symbol).With("timeframe", tf)
	}

	candles, err := ParseKlineRows(rows)
	if err != nil {
		return nil, errors.Wrap(err, "parse klines").With("symbol", symbol)
	}
	return model.NormalizeCandles(candles), nil
}

// Depth is an order book snapshot.
type Depth struct {
	LastUpdateID int64
	Bids         []model.PriceLevel
	Asks         []model.PriceLevel
}

// LoadDepth reads an order book snapshot of up to limit levels per side.
func LoadDepth(ctx context.Context, v Venue, c *rest.Client, symbol string, limit int) (Depth, error) {
	payload, err := rest.Decode[depthPayload](ctx, c, rest.Request{
		URL:    v.BaseURL() + "/depth",
		Params: url.Values{"symbol": {symbol}, "limit": {strconv.Itoa(limit)}},
	})
	if err != nil {
		return Depth{}, errors.Wrap(err, "load depth").With("symbol", symbol)
	}
	return Depth{
		LastUpdateID: payload.LastUpdateID,
		Bids:         levels(payload.Bids),
		Asks:         levels(payload.Asks),
	}, nil
}

// LoadTrades reads the latest public trades, oldest first.
func LoadTrades(ctx context.Context, v Venue, c *rest.Client, symbol string, limit int) ([]model.Trade, error) {
	payload, err := rest.Decode[[]tradePayload](ctx, c, rest.Request{
		URL:    v.BaseURL() + "/trades",
		Params: url.Values{"symbol": {symbol}, "limit": {strconv.Itoa(limit)}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "load trades").With("symbol", symbol)
	}

	trades := make([]model.Trade, 0, len(payload))
	for _, t := range payload {
		trades = append(trades, t.trade(symbol))
	}
	return trades, nil
}

// CreateListenKey opens a user data stream and returns its key.
func CreateListenKey(ctx context.Context, v Venue, c *rest.Client) (string, error) {
	payload, err := rest.Decode[listenKeyPayload](ctx, c, rest.Request{
		Method:  http.MethodPost,
		URL:     v.ListenKeyURL() + v.ListenKeyPath(),
		WithKey: true,
	})
	if err != nil {
		return "", errors.Wrap(err, "create listen key")
	}
	if payload.ListenKey == "" {
		return "", exception.ErrEmptyListenKey
	}
	return payload.ListenKey, nil
}

// KeepAliveListenKey extends the validity of key.
func KeepAliveListenKey(ctx context.Context, v Venue, c *rest.Client, key string) error {
	if _, err := c.Call(ctx, listenKeyRequest(v, http.MethodPut, key)); err != nil {
		return errors.Wrap(err, "keep alive listen key")
	}
	return nil
}

// CloseListenKey closes the user data stream of key.
func CloseListenKey(ctx context.Context, v Venue, c *rest.Client, key string) error {
	if _, err := c.Call(ctx, listenKeyRequest(v, http.MethodDelete, key)); err != nil {
		return errors.Wrap(err, "close listen key")
	}
	return nil
}

// listenKeyRequest names the key explicitly on spot; futures infers it from
// the api key.
func listenKeyRequest(v Venue, method, key string) rest.Request {
	req := rest.Request{
		Method:  method,
		URL:     v.ListenKeyURL() + v.ListenKeyPath(),
		WithKey: true,
	}
	if v.Market() == enum.MarketSpot {
		req.Params = url.Values{"listenKey": {key}}
	}
	return req
}
