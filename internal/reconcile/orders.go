package reconcile

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"connector/internal/binance"
	"connector/internal/model"
	"connector/internal/model/enum"
	"connector/pkg/exception"
	"connector/pkg/rest"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"
)

// OrderRequest describes a new order.
type OrderRequest struct {
	Symbol    string
	Side      enum.OrderSide
	Type      enum.OrderType
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	StopPrice decimal.Decimal
	// TimeInForce defaults to GTC for priced orders.
	TimeInForce enum.TimeInForce
	// ClientID defaults to a random uuid.
	ClientID string
	// IsIsolated routes a spot order to the margin endpoints.
	IsIsolated     *bool
	SideEffectType enum.SideEffectType
	// ReduceOnly and ClosePosition apply to futures.
	ReduceOnly    bool
	ClosePosition bool
}

func (r OrderRequest) validate() error {
	switch {
	case r.Symbol == "":
		return errors.Wrap(exception.ErrOrderInvalidRequest, "empty symbol")
	case !r.Side.IsAvailable():
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "side: %q", r.Side)
	case !r.Type.IsAvailable():
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "type: %q", r.Type)
	case !r.ClosePosition && !r.Quantity.IsPositive():
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "quantity: %s", r.Quantity)
	case !r.Type.IsMarket() && !r.Price.IsPositive():
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "price: %s", r.Price)
	case r.Type.IsStopMarket() && !r.StopPrice.IsPositive():
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "stop price: %s", r.StopPrice)
	}
	return nil
}

func isolatedParam(isolated *bool) string {
	return strings.ToUpper(strconv.FormatBool(*isolated))
}

// LoadOrders reads the latest orders of symbol and merges them into the
// order map.
func (e *Engine) LoadOrders(ctx context.Context, symbol string, isolated *bool) ([]model.Order, error) {
	params := url.Values{
		"symbol": {symbol},
		"limit":  {strconv.Itoa(e.opt.LoadLimit)},
	}
	if isolated != nil && e.venue.MarginURL() != "" {
		params.Set("isIsolated", isolatedParam(isolated))
	}

	payload, err := rest.Decode[[]binance.RESTOrder](ctx, e.client, rest.Request{
		URL:    binance.OrderURL(e.venue, isolated, "/allOrders"),
		Params: params,
		Signed: true,
	})
	if err != nil {
		return nil, errors.Wrap(e.observe(err), "load orders").With("symbol", symbol)
	}

	orders := make([]model.Order, 0, len(payload))
	for _, r := range payload {
		o := r.Order()
		if o.IsIsolated == nil {
			o.IsIsolated = isolated
		}
		orders = append(orders, e.applyOrder(ctx, o))
	}
	return orders, nil
}

// LoadAllOrders loads the orders of every symbol concurrently.
func (e *Engine) LoadAllOrders(ctx context.Context, symbols []string) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.opt.Concurrency)
	for _, symbol := range symbols {
		eg.Go(func() error {
			_, err := e.LoadOrders(ctx, symbol, nil)
			return err
		})
	}
	return eg.Wait()
}

// PlaceOrder submits req. Prices and quantities are truncated to the symbol
// precision.
func (e *Engine) PlaceOrder(ctx context.Context, req OrderRequest) (model.Order, error) {
	if e.Halted() {
		return model.Order{}, exception.ErrOrderTradingHalted
	}
	if err := req.validate(); err != nil {
		return model.Order{}, err
	}
	info, err := e.catalog.SymbolInfo(req.Symbol)
	if err != nil {
		return model.Order{}, errors.Wrap(exception.ErrOrderUnknownSymbol, err.Error())
	}

	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	params := url.Values{
		"symbol":           {req.Symbol},
		"side":             {string(req.Side)},
		"type":             {string(req.Type)},
		"newClientOrderId": {req.ClientID},
	}
	if !req.ClosePosition {
		params.Set("quantity", info.FormatAmount(req.Quantity))
	}
	if !req.Type.IsMarket() {
		tif := req.TimeInForce
		if tif == "" {
			tif = enum.TimeInForceGTC
		}
		params.Set("price", info.FormatPrice(req.Price))
		params.Set("timeInForce", string(tif))
	}
	if req.StopPrice.IsPositive() {
		params.Set("stopPrice", info.FormatPrice(req.StopPrice))
	}

	switch e.venue.Market() {
	case enum.MarketFutures:
		params.Set("newOrderRespType", "RESULT")
		if req.ReduceOnly {
			params.Set("reduceOnly", "true")
		}
		if req.ClosePosition {
			params.Set("closePosition", "true")
		}
	default:
		params.Set("newOrderRespType", "FULL")
		if req.IsIsolated != nil {
			params.Set("isIsolated", isolatedParam(req.IsIsolated))
			if req.SideEffectType != "" {
				params.Set("sideEffectType", string(req.SideEffectType))
			}
		}
	}

	payload, err := rest.Decode[binance.RESTOrder](ctx, e.client, rest.Request{
		Method: http.MethodPost,
		URL:    binance.OrderURL(e.venue, req.IsIsolated, "/order"),
		Params: params,
		Signed: true,
	})
	if err != nil {
		return model.Order{}, errors.Wrap(e.observe(err), "place order").With("symbol", req.Symbol).With("client_id", req.ClientID)
	}

	o := payload.Order()
	if o.IsIsolated == nil {
		o.IsIsolated = req.IsIsolated
	}
	logs.Infof("order placed, symbol: %s, id: %d, side: %s, type: %s, status: %s", o.Symbol, o.ID, o.Side, o.Type, o.Status)
	return e.applyOrder(ctx, o), nil
}

// CancelOrder cancels one order by venue id.
func (e *Engine) CancelOrder(ctx context.Context, symbol string, orderID int64, isolated *bool) (model.Order, error) {
	if e.Halted() {
		return model.Order{}, exception.ErrOrderTradingHalted
	}

	params := url.Values{
		"symbol":  {symbol},
		"orderId": {strconv.FormatInt(orderID, 10)},
	}
	if isolated != nil && e.venue.MarginURL() != "" {
		params.Set("isIsolated", isolatedParam(isolated))
	}

	payload, err := rest.Decode[binance.RESTOrder](ctx, e.client, rest.Request{
		Method: http.MethodDelete,
		URL:    binance.OrderURL(e.venue, isolated, "/order"),
		Params: params,
		Signed: true,
	})
	if err != nil {
		return model.Order{}, errors.Wrap(e.observe(err), "cancel order").With("symbol", symbol).With("order_id", orderID)
	}

	o := payload.Order()
	if o.IsIsolated == nil {
		o.IsIsolated = isolated
	}
	return e.applyOrder(ctx, o), nil
}
