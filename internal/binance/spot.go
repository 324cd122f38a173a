package binance

import (
	"context"

	"connector/internal/model/enum"
	"connector/pkg/rest"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// DefaultSpotEndpoints are the production spot hosts.
func DefaultSpotEndpoints() Endpoints {
	return Endpoints{
		REST:      "https://api.binance.com/api/v3",
		Margin:    "https://api.binance.com/sapi/v1/margin",
		PublicWS:  "wss://stream.binance.com:443/ws",
		PrivateWS: "wss://stream.binance.com:9443/ws",
	}
}

// Spot is the spot and margin product line.
type Spot struct {
	ep Endpoints
}

func NewSpot(ep Endpoints) *Spot {
	return &Spot{ep: ep.merge(DefaultSpotEndpoints())}
}

func (s *Spot) Market() enum.Market         { return enum.MarketSpot }
func (s *Spot) BaseURL() string             { return s.ep.REST }
func (s *Spot) MarginURL() string           { return s.ep.Margin }
func (s *Spot) WebsocketURL() string        { return s.ep.PublicWS }
func (s *Spot) PrivateWebsocketURL() string { return s.ep.PrivateWS }
func (s *Spot) ListenKeyPath() string       { return "/userDataStream" }
func (s *Spot) ListenKeyURL() string        { return s.ep.REST }
func (s *Spot) MarkPricePath() string       { return "/ticker/price" }

// LoadExchangeInfo keeps symbols open for spot trading.
func (s *Spot) LoadExchangeInfo(ctx context.Context, c *rest.Client) (ExchangeInfo, error) {
	return loadExchangeInfo(ctx, c, s.ep.REST,
		func(sym exchangeSymbol) bool { return sym.IsSpotTradingAllowed },
		func(sym exchangeSymbol) string { return sym.QuoteAsset },
	)
}

// LoadMarkPrices uses the last traded price of every symbol.
func (s *Spot) LoadMarkPrices(ctx context.Context, c *rest.Client) (map[string]decimal.Decimal, error) {
	tickers, err := rest.Decode[[]tickerPrice](ctx, c, rest.Request{URL: s.ep.REST + s.MarkPricePath()})
	if err != nil {
		return nil, errors.Wrap(err, "load spot mark prices")
	}

	prices := make(map[string]decimal.Decimal, len(tickers))
	for _, t := range tickers {
		prices[t.Symbol] = t.Price
	}
	return prices, nil
}
