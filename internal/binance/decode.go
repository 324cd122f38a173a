package binance

import (
	"time"

	"connector/internal/model"
	"connector/internal/model/enum"
	"connector/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Stream event types.
const (
	EventExecutionReport  = "executionReport"
	EventOrderTradeUpdate = "ORDER_TRADE_UPDATE"
	EventAccountUpdate    = "ACCOUNT_UPDATE"
	EventListenKeyExpired = "listenKeyExpired"
	EventKline            = "kline"
	EventTrade            = "trade"
	EventAggTrade         = "aggTrade"
	EventDepthUpdate      = "depthUpdate"
	EventMarkPriceUpdate  = "markPriceUpdate"
)

type envelope struct {
	Event
	Side string `json:"S"`
}

// Peek reads the envelope of a stream message. Control replies such as
// {"result":null,"id":1} come back with an empty type.
func Peek(msg []byte) (Event, error) {
	var env envelope
	if err := sonic.Unmarshal(msg, &env); err != nil {
		return Event{}, errors.Wrap(err, "peek event")
	}
	return env.Event, nil
}

// Unmarshal decodes a stream message into T.
func Unmarshal[T any](msg []byte) (T, error) {
	var v T
	if err := sonic.Unmarshal(msg, &v); err != nil {
		return v, errors.Wrapf(err, "unmarshal %T", v)
	}
	return v, nil
}

func firstNonZero(values ...decimal.Decimal) decimal.Decimal {
	for _, v := range values {
		if !v.IsZero() {
			return v
		}
	}
	return decimal.Zero
}

func firstTime(millis ...int64) time.Time {
	for _, ms := range millis {
		if ms > 0 {
			return time.UnixMilli(ms)
		}
	}
	return time.Time{}
}

// Order converts a REST order. Filled stop-market orders report no execution
// price, so it is taken from the quote quantity instead.
func (r RESTOrder) Order() model.Order {
	o := model.Order{
		ID:               r.OrderID,
		ClientID:         r.ClientOrderID,
		Symbol:           r.Symbol,
		Side:             enum.OrderSide(r.Side),
		Type:             enum.OrderType(r.Type),
		Status:           enum.OrderStatus(r.Status),
		Price:            r.Price,
		StopPrice:        r.StopPrice,
		Quantity:         r.OrigQty,
		ExecutedQuantity: r.ExecutedQty,
		Time:             firstTime(r.TransactTime, r.UpdateTime, r.Time),
		IsIsolated:       r.IsIsolated,
	}

	quote := firstNonZero(r.CummulativeQuoteQty, r.CumQuote)
	quoteAvg := decimal.Zero
	if quote.IsPositive() && r.ExecutedQty.IsPositive() {
		quoteAvg = quote.Div(r.ExecutedQty)
	}
	if o.Type.IsStopMarket() && o.Status == enum.OrderStatusFilled && quoteAvg.IsPositive() {
		o.Price = quoteAvg
	}
	if o.Price.IsZero() {
		o.Price = r.AvgPrice
	}

	fillsAvg := decimal.Zero
	if len(r.Fills) != 0 {
		weighted, qty := decimal.Zero, decimal.Zero
		for _, f := range r.Fills {
			weighted = weighted.Add(f.Price.Mul(f.Qty))
			qty = qty.Add(f.Qty)
			o.Commission = o.Commission.Add(f.Commission)
		}
		if qty.IsPositive() {
			fillsAvg = weighted.Div(qty)
		}
	}

	o.AvgPrice = firstNonZero(fillsAvg, o.Price, r.StopPrice, r.AvgPrice, quoteAvg)
	if o.Price.IsZero() {
		o.Price = o.AvgPrice
	}
	return o
}

// Order converts a spot or margin execution report.
func (e ExecutionReport) Order() model.Order {
	o := model.Order{
		ID:               e.OrderID,
		ClientID:         e.ClientOrderID,
		Symbol:           e.Symbol,
		Side:             enum.OrderSide(e.Side),
		Type:             enum.OrderType(e.OrderType),
		Status:           enum.OrderStatus(e.Status),
		Price:            e.Price,
		StopPrice:        e.StopPrice,
		Quantity:         e.Quantity,
		ExecutedQuantity: e.ExecutedQuantity,
		Commission:       e.Commission,
		Time:             firstTime(e.TransactionTime, e.Time),
		TradeUpdateTime:  firstTime(e.TransactionTime),
	}
	if o.Type.IsStopMarket() && e.StopPrice.IsPositive() {
		o.Price = e.StopPrice
	}

	avg := decimal.Zero
	if e.ExecutedQuantity.IsPositive() {
		avg = e.QuoteQuantity.Div(e.ExecutedQuantity)
	}
	o.AvgPrice = firstNonZero(avg, o.Price)
	if o.Price.IsZero() {
		o.Price = o.AvgPrice
	}
	return o
}

// Order converts a futures order update. TradeUpdateTime is the transaction
// time shared with the account update of the same fill.
func (u OrderTradeUpdate) Order() model.Order {
	src := u.Data
	o := model.Order{
		ID:               src.OrderID,
		ClientID:         src.ClientOrderID,
		Symbol:           src.Symbol,
		Side:             enum.OrderSide(src.Side),
		Type:             enum.OrderType(src.OrderType),
		Status:           enum.OrderStatus(src.Status),
		Price:            src.Price,
		StopPrice:        src.StopPrice,
		Quantity:         src.Quantity,
		ExecutedQuantity: src.ExecutedQuantity,
		Commission:       src.Commission,
		Time:             firstTime(src.TradeTime, u.TransactionTime, u.Time),
		TradeUpdateTime:  firstTime(u.TransactionTime),
	}
	if o.Type.IsStopMarket() && src.StopPrice.IsPositive() {
		o.Price = src.StopPrice
	}

	o.AvgPrice = firstNonZero(src.AvgPrice, o.Price)
	if o.Price.IsZero() {
		o.Price = o.AvgPrice
	}
	return o
}

// Positions returns the one-way mode position entries of the update. Hedge
// mode LONG/SHORT legs are skipped.
func (u AccountUpdate) Positions() []model.PositionUpdate {
	updates := make([]model.PositionUpdate, 0, len(u.Account.Positions))
	for _, p := range u.Account.Positions {
		if p.PositionSide != "" && p.PositionSide != string(enum.PositionSideBoth) {
			continue
		}
		updates = append(updates, model.PositionUpdate{
			Symbol:        p.Symbol,
			Amount:        p.Amount,
			EntryPrice:    p.EntryPrice,
			RealizedPnL:   p.AccumulatedPnL,
			UnrealizedPnL: p.UnrealizedPnL,
			MarginType:    p.MarginType,
		})
	}
	return updates
}

// EventTime is the transaction time, falling back to the event time.
func (u AccountUpdate) EventTime() time.Time {
	return firstTime(u.TransactionTime, u.Time)
}

// Candle converts the kline and reports whether its interval is closed.
func (e KlineEvent) Candle() (model.Candle, bool) {
	k := e.Kline
	return model.Candle{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   k.Open,
		High:   k.High,
		Low:    k.Low,
		Close:  k.Close,
		Volume: k.Volume,
	}, k.Closed
}

// Levels converts the update into bid and ask levels.
func (e DepthEvent) Levels() (bids, asks []model.PriceLevel) {
	return levels(e.Bids), levels(e.Asks)
}

func levels(raw [][]decimal.Decimal) []model.PriceLevel {
	result := make([]model.PriceLevel, 0, len(raw))
	for _, l := range raw {
		if len(l) < 2 {
			continue
		}
		result = append(result, model.PriceLevel{Price: l[0], Quantity: l[1]})
	}
	return result
}

// ParseKlineRows converts REST kline rows,
// [openTime, open, high, low, close, volume, closeTime, ...].
func ParseKlineRows(rows [][]any) ([]model.Candle, error) {
	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "kline row %d has %d fields", i, len(row))
		}
		openTime, err := anyInt64(row[0])
		if err != nil {
			return nil, errors.Wrapf(err, "kline row %d open time", i)
		}

		var values [5]decimal.Decimal
		for j := range values {
			if values[j], err = anyDecimal(row[j+1]); err != nil {
				return nil, errors.Wrapf(err, "kline row %d field %d", i, j+1)
			}
		}

		candles = append(candles, model.Candle{
			Time:   time.UnixMilli(openTime).UTC(),
			Open:   values[0],
			High:   values[1],
			Low:    values[2],
			Close:  values[3],
			Volume: values[4],
		})
	}
	return candles, nil
}

func anyInt64(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return 0, err
		}
		return d.IntPart(), nil
	}
	return 0, errors.Errorf("unexpected number type %T", v)
}

func anyDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case string:
		return decimal.NewFromString(n)
	case float64:
		return decimal.NewFromFloat(n), nil
	}
	return decimal.Zero, errors.Errorf("unexpected decimal type %T", v)
}
