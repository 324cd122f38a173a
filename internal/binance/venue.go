// Package binance describes the spot and futures flavours of the venue: their
// endpoints, exchange metadata, wire payloads and how those payloads decode
// into model types.
package binance

import (
	"context"
	"strings"

	"connector/internal/model"
	"connector/internal/model/enum"
	"connector/pkg/exception"
	"connector/pkg/rest"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// MaxCandles is the largest kline batch the venue returns per request.
const MaxCandles = 1000

// Venue is what differs between the spot and futures product lines.
type Venue interface {
	Market() enum.Market
	// BaseURL is the REST root, e.g. https://api.binance.com/api/v3.
	BaseURL() string
	// MarginURL is the margin REST root. Empty when margin is unsupported.
	MarginURL() string
	// WebsocketURL is the public stream root, without a trailing slash.
	WebsocketURL() string
	// PrivateWebsocketURL is joined with a listen key.
	PrivateWebsocketURL() string
	// ListenKeyPath is relative to the listen key root.
	ListenKeyPath() string
	// ListenKeyURL is the REST root serving listen keys.
	ListenKeyURL() string
	// MarkPricePath returns mark prices of every symbol.
	MarkPricePath() string

	LoadExchangeInfo(ctx context.Context, c *rest.Client) (ExchangeInfo, error)
	LoadMarkPrices(ctx context.Context, c *rest.Client) (map[string]decimal.Decimal, error)
}

// Endpoints overrides default hosts. Empty fields keep the defaults.
type Endpoints struct {
	REST      string
	Margin    string
	PublicWS  string
	PrivateWS string
}

func (e Endpoints) merge(def Endpoints) Endpoints {
	if e.REST == "" {
		e.REST = def.REST
	}
	if e.Margin == "" {
		e.Margin = def.Margin
	}
	if e.PublicWS == "" {
		e.PublicWS = def.PublicWS
	}
	if e.PrivateWS == "" {
		e.PrivateWS = def.PrivateWS
	}
	e.REST = strings.TrimRight(e.REST, "/")
	e.Margin = strings.TrimRight(e.Margin, "/")
	e.PublicWS = strings.TrimRight(e.PublicWS, "/")
	e.PrivateWS = strings.TrimRight(e.PrivateWS, "/")
	return e
}

// ExchangeInfo is the parsed exchange metadata.
type ExchangeInfo struct {
	WeightLimit     int
	RawRequestLimit int
	Symbols         map[string]model.SymbolInfo
}

// New selects the venue implementation for market.
func New(market enum.Market, ep Endpoints) (Venue, error) {
	switch market {
	case enum.MarketSpot:
		return NewSpot(ep), nil
	case enum.MarketFutures:
		return NewFutures(ep), nil
	default:
		return nil, errors.Wrapf(exception.ErrArgumentUnsupported, "market: %q", market)
	}
}

// OrderURL picks the margin root for isolated/cross margin orders.
func OrderURL(v Venue, isolated *bool, path string) string {
	if isolated != nil && v.MarginURL() != "" {
		return v.MarginURL() + path
	}
	return v.BaseURL() + path
}

// StreamName joins a symbol and feed into a public stream token.
func StreamName(symbol string, feed enum.Feed) string {
	return strings.ToLower(symbol) + "@" + string(feed)
}

func loadExchangeInfo(ctx context.Context, c *rest.Client, url string, keep func(exchangeSymbol) bool, quote func(exchangeSymbol) string) (ExchangeInfo, error) {
	payload, err := rest.Decode[exchangeInfoPayload](ctx, c, rest.Request{URL: url + "/exchangeInfo"})
	if err != nil {
		return ExchangeInfo{}, errors.Wrap(err, "load exchange info")
	}

	info := ExchangeInfo{Symbols: make(map[string]model.SymbolInfo, len(payload.Symbols))}
	for _, limit := range payload.RateLimits {
		switch limit.RateLimitType {
		case "REQUEST_WEIGHT":
			info.WeightLimit = limit.Limit
		case "RAW_REQUESTS":
			info.RawRequestLimit = limit.Limit
		}
	}
	if info.RawRequestLimit == 0 {
		info.RawRequestLimit = info.WeightLimit
	}

	for _, s := range payload.Symbols {
		if !keep(s) {
			continue
		}
		symbol := s.symbolInfo()
		symbol.QuoteAsset = quote(s)
		info.Symbols[symbol.Symbol] = symbol
	}
	return info, nil
}
