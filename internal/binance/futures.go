package binance

import (
	"context"

	"connector/internal/model/enum"
	"connector/pkg/rest"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// DefaultFuturesEndpoints are the production USD-M futures hosts.
func DefaultFuturesEndpoints() Endpoints {
	return Endpoints{
		REST:      "https://fapi.binance.com/fapi/v1",
		PublicWS:  "wss://fstream.binance.com/ws",
		PrivateWS: "wss://fstream.binance.com/ws",
	}
}

// Futures is the USD-M futures product line. It has no margin endpoints.
type Futures struct {
	ep Endpoints
}

func NewFutures(ep Endpoints) *Futures {
	ep = ep.merge(DefaultFuturesEndpoints())
	ep.Margin = ""
	return &Futures{ep: ep}
}

func (f *Futures) Market() enum.Market         { return enum.MarketFutures }
func (f *Futures) BaseURL() string             { return f.ep.REST }
func (f *Futures) MarginURL() string           { return "" }
func (f *Futures) WebsocketURL() string        { return f.ep.PublicWS }
func (f *Futures) PrivateWebsocketURL() string { return f.ep.PrivateWS }
func (f *Futures) ListenKeyPath() string       { return "/listenKey" }
func (f *Futures) ListenKeyURL() string        { return f.ep.REST }
func (f *Futures) MarkPricePath() string       { return "/premiumIndex" }

// LoadExchangeInfo keeps trading symbols; the quote is the margin asset.
func (f *Futures) LoadExchangeInfo(ctx context.Context, c *rest.Client) (ExchangeInfo, error) {
	return loadExchangeInfo(ctx, c, f.ep.REST,
		func(sym exchangeSymbol) bool { return sym.Status == "TRADING" },
		func(sym exchangeSymbol) string {
			if sym.MarginAsset != "" {
				return sym.MarginAsset
			}
			return sym.QuoteAsset
		},
	)
}

// LoadMarkPrices reads the premium index mark price of every symbol.
func (f *Futures) LoadMarkPrices(ctx context.Context, c *rest.Client) (map[string]decimal.Decimal, error) {
	indexes, err := rest.Decode[[]premiumIndex](ctx, c, rest.Request{URL: f.ep.REST + f.MarkPricePath()})
	if err != nil {
		return nil, errors.Wrap(err, "load futures mark prices")
	}

	prices := make(map[string]decimal.Decimal, len(indexes))
	for _, idx := range indexes {
		prices[idx.Symbol] = idx.MarkPrice
	}
	return prices, nil
}
