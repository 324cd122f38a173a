package binance

import (
	"math"
	"time"

	"connector/internal/model"
	"connector/internal/model/enum"

	"github.com/shopspring/decimal"
)

type exchangeInfoPayload struct {
	RateLimits []rateLimit      `json:"rateLimits"`
	Symbols    []exchangeSymbol `json:"symbols"`
}

type rateLimit struct {
	RateLimitType string `json:"rateLimitType"`
	Interval      string `json:"interval"`
	IntervalNum   int    `json:"intervalNum"`
	Limit         int    `json:"limit"`
}

type exchangeSymbol struct {
	Symbol                 string         `json:"symbol"`
	Status                 string         `json:"status"`
	BaseAsset              string         `json:"baseAsset"`
	BaseAssetPrecision     int32          `json:"baseAssetPrecision"`
	QuoteAsset             string         `json:"quoteAsset"`
	MarginAsset            string         `json:"marginAsset"`
	UnderlyingType         string         `json:"underlyingType"`
	IsSpotTradingAllowed   bool           `json:"isSpotTradingAllowed"`
	IsMarginTradingAllowed bool           `json:"isMarginTradingAllowed"`
	Filters                []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType  string          `json:"filterType"`
	TickSize    decimal.Decimal `json:"tickSize"`
	StepSize    decimal.Decimal `json:"stepSize"`
	MinNotional decimal.Decimal `json:"minNotional"`
	Notional    decimal.Decimal `json:"notional"`
}

func (s exchangeSymbol) symbolInfo() model.SymbolInfo {
	info := model.SymbolInfo{
		Symbol:                 s.Symbol,
		BaseAsset:              s.BaseAsset,
		QuoteAsset:             s.QuoteAsset,
		UnderlyingType:         s.UnderlyingType,
		PricePrecision:         s.BaseAssetPrecision,
		IsMarginTradingAllowed: s.IsMarginTradingAllowed,
	}
	for _, f := range s.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			info.TickSize = f.TickSize
		case "LOT_SIZE":
			info.LotSize = f.StepSize
		case "MIN_NOTIONAL", "NOTIONAL":
			if f.MinNotional.IsPositive() {
				info.MinNotional = f.MinNotional
			} else {
				info.MinNotional = f.Notional
			}
		}
	}
	info.AmountPrecision = amountPrecision(info.LotSize)
	return info
}

// amountPrecision is the number of decimals in a lot size, -round(log10(lot)).
func amountPrecision(lot decimal.Decimal) int32 {
	if !lot.IsPositive() {
		return 0
	}
	p := -math.Round(math.Log10(lot.InexactFloat64()))
	if p < 0 {
		return 0
	}
	return int32(p)
}

type tickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

type premiumIndex struct {
	Symbol    string          `json:"symbol"`
	MarkPrice decimal.Decimal `json:"markPrice"`
}

type listenKeyPayload struct {
	ListenKey string `json:"listenKey"`
}

// depthPayload is a REST depth snapshot.
type depthPayload struct {
	LastUpdateID int64               `json:"lastUpdateId"`
	Bids         [][]decimal.Decimal `json:"bids"`
	Asks         [][]decimal.Decimal `json:"asks"`
}

type tradePayload struct {
	ID           int64           `json:"id"`
	Price        decimal.Decimal `json:"price"`
	Qty          decimal.Decimal `json:"qty"`
	Time         int64           `json:"time"`
	IsBuyerMaker bool            `json:"isBuyerMaker"`
}

func (t tradePayload) trade(symbol string) model.Trade {
	return model.Trade{
		ID:       t.ID,
		Symbol:   symbol,
		Price:    t.Price,
		Quantity: t.Qty,
		Side:     takerSide(t.IsBuyerMaker),
		Time:     time.UnixMilli(t.Time),
	}
}

func takerSide(isBuyerMaker bool) enum.OrderSide {
	if isBuyerMaker {
		return enum.OrderSideSell
	}
	return enum.OrderSideBuy
}

// RESTOrder is an order as returned by the order and allOrders endpoints.
type RESTOrder struct {
	Symbol              string          `json:"symbol"`
	OrderID             int64           `json:"orderId"`
	ClientOrderID       string          `json:"clientOrderId"`
	Price               decimal.Decimal `json:"price"`
	AvgPrice            decimal.Decimal `json:"avgPrice"`
	StopPrice           decimal.Decimal `json:"stopPrice"`
	OrigQty             decimal.Decimal `json:"origQty"`
	ExecutedQty         decimal.Decimal `json:"executedQty"`
	CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	CumQuote            decimal.Decimal `json:"cumQuote"`
	Status              string          `json:"status"`
	Type                string          `json:"type"`
	Side                string          `json:"side"`
	Time                int64           `json:"time"`
	TransactTime        int64           `json:"transactTime"`
	UpdateTime          int64           `json:"updateTime"`
	IsIsolated          *bool           `json:"isIsolated"`
	Fills               []RESTFill      `json:"fills"`
}

type RESTFill struct {
	Price           decimal.Decimal `json:"price"`
	Qty             decimal.Decimal `json:"qty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
}

// Event is the envelope shared by every stream payload.
//
// Stream payloads reuse single letter keys that differ only in case, and the
// decoder falls back to case-insensitive matching. Every struct below declares
// both keys of a colliding pair so the wrong one never lands in a field.
type Event struct {
	Type   string `json:"e"`
	Time   int64  `json:"E"`
	Symbol string `json:"s"`
}

// ExecutionReport is a spot or margin order update.
type ExecutionReport struct {
	Event
	ClientOrderID     string          `json:"c"`
	OrigClientOrderID string          `json:"C"`
	Side              string          `json:"S"`
	OrderType         string          `json:"o"`
	CreationTime      int64           `json:"O"`
	Quantity          decimal.Decimal `json:"q"`
	QuoteOrderQty     decimal.Decimal `json:"Q"`
	Price             decimal.Decimal `json:"p"`
	StopPrice         decimal.Decimal `json:"P"`
	ExecutionType     string          `json:"x"`
	Status            string          `json:"X"`
	OrderID           int64           `json:"i"`
	Ignore            int64           `json:"I"`
	ExecutedQuantity  decimal.Decimal `json:"z"`
	QuoteQuantity     decimal.Decimal `json:"Z"`
	Commission        decimal.Decimal `json:"n"`
	CommissionAsset   *string         `json:"N"`
	TransactionTime   int64           `json:"T"`
	TradeID           int64           `json:"t"`
}

// OrderTradeUpdate is a futures order update.
type OrderTradeUpdate struct {
	Event
	TransactionTime int64        `json:"T"`
	Data            futuresOrder `json:"o"`
}

type futuresOrder struct {
	Symbol           string          `json:"s"`
	ClientOrderID    string          `json:"c"`
	Side             string          `json:"S"`
	OrderType        string          `json:"o"`
	Quantity         decimal.Decimal `json:"q"`
	Price            decimal.Decimal `json:"p"`
	AvgPrice         decimal.Decimal `json:"ap"`
	ActivationPrice  decimal.Decimal `json:"AP"`
	StopPrice        decimal.Decimal `json:"sp"`
	ExecutionType    string          `json:"x"`
	Status           string          `json:"X"`
	OrderID          int64           `json:"i"`
	ExecutedQuantity decimal.Decimal `json:"z"`
	Commission       decimal.Decimal `json:"n"`
	CommissionAsset  *string         `json:"N"`
	TradeTime        int64           `json:"T"`
	TradeID          int64           `json:"t"`
	ReduceOnly       bool            `json:"R"`
	PositionSide     string          `json:"ps"`
}

// AccountUpdate is a futures balance and position update.
type AccountUpdate struct {
	Event
	TransactionTime int64 `json:"T"`
	Account         struct {
		Reason    string            `json:"m"`
		Positions []accountPosition `json:"P"`
	} `json:"a"`
}

type accountPosition struct {
	Symbol         string          `json:"s"`
	Amount         decimal.Decimal `json:"pa"`
	EntryPrice     decimal.Decimal `json:"ep"`
	AccumulatedPnL decimal.Decimal `json:"cr"`
	UnrealizedPnL  decimal.Decimal `json:"up"`
	MarginType     string          `json:"mt"`
	PositionSide   string          `json:"ps"`
}

// KlineEvent is a public kline update.
type KlineEvent struct {
	Event
	Kline struct {
		OpenTime      int64           `json:"t"`
		CloseTime     int64           `json:"T"`
		Interval      string          `json:"i"`
		LastTradeID   int64           `json:"L"`
		Open          decimal.Decimal `json:"o"`
		Close         decimal.Decimal `json:"c"`
		High          decimal.Decimal `json:"h"`
		Low           decimal.Decimal `json:"l"`
		Volume        decimal.Decimal `json:"v"`
		TakerBuyBase  decimal.Decimal `json:"V"`
		QuoteVolume   decimal.Decimal `json:"q"`
		TakerBuyQuote decimal.Decimal `json:"Q"`
		Closed        bool            `json:"x"`
	} `json:"k"`
}

// TradeEvent covers trade and aggTrade updates.
type TradeEvent struct {
	Event
	TradeID      int64           `json:"t"`
	AggTradeID   int64           `json:"a"`
	Price        decimal.Decimal `json:"p"`
	Quantity     decimal.Decimal `json:"q"`
	TradeTime    int64           `json:"T"`
	IsBuyerMaker bool            `json:"m"`
	Ignore       bool            `json:"M"`
}

// Trade converts the event into a model trade.
func (e TradeEvent) Trade() model.Trade {
	id := e.TradeID
	if id == 0 {
		id = e.AggTradeID
	}
	return model.Trade{
		ID:       id,
		Symbol:   e.Symbol,
		Price:    e.Price,
		Quantity: e.Quantity,
		Side:     takerSide(e.IsBuyerMaker),
		Time:     time.UnixMilli(e.TradeTime),
	}
}

// DepthEvent is an incremental order book update.
type DepthEvent struct {
	Event
	FirstUpdateID int64               `json:"U"`
	FinalUpdateID int64               `json:"u"`
	Bids          [][]decimal.Decimal `json:"b"`
	Asks          [][]decimal.Decimal `json:"a"`
}

// MarkPriceEvent is a futures mark price update.
type MarkPriceEvent struct {
	Event
	MarkPrice       decimal.Decimal `json:"p"`
	SettlePrice     decimal.Decimal `json:"P"`
	IndexPrice      decimal.Decimal `json:"i"`
	FundingRate     decimal.Decimal `json:"r"`
	NextFundingTime int64           `json:"T"`
}
