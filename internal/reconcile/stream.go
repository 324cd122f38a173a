package reconcile

import (
	"context"
	"time"

	"connector/internal/binance"
	"connector/internal/model"
	"connector/internal/model/enum"

	"github.com/yanun0323/logs"
)

// HandleMessage routes one user data stream message. It fits
// websocket.Hooks.OnMessage.
func (e *Engine) HandleMessage(ctx context.Context, msg []byte) error {
	ev, err := binance.Peek(msg)
	if err != nil {
		return err
	}
	if ev.Type != "" {
		e.seen(ev.Type)
	}

	switch ev.Type {
	case binance.EventExecutionReport:
		report, err := binance.Unmarshal[binance.ExecutionReport](msg)
		if err != nil {
			return err
		}
		e.applyOrder(ctx, report.Order())
	case binance.EventOrderTradeUpdate:
		update, err := binance.Unmarshal[binance.OrderTradeUpdate](msg)
		if err != nil {
			return err
		}
		e.HandleOrderTradeUpdate(ctx, update.Order())
	case binance.EventAccountUpdate:
		update, err := binance.Unmarshal[binance.AccountUpdate](msg)
		if err != nil {
			return err
		}
		e.HandleAccountUpdate(ctx, update.Positions(), update.EventTime())
	case binance.EventListenKeyExpired:
		logs.Warnf("reconcile: listen key expired")
		e.expiredMu.RLock()
		fn := e.onExpired
		e.expiredMu.RUnlock()
		if fn != nil {
			fn()
		}
	case "":
	default:
		logs.Debugf("reconcile: skip event %s", ev.Type)
	}
	return nil
}

// HandleOrderTradeUpdate records a futures order and folds it into the
// position of its symbol.
func (e *Engine) HandleOrderTradeUpdate(ctx context.Context, o model.Order) {
	b := e.book(o.Symbol)
	b.mu.Lock()
	merged := b.apply(o)
	b.livePosition(o.Symbol).UpdateOrder(merged)
	snapshot := b.settle()
	b.mu.Unlock()

	e.orderHandlers.Dispatch(ctx, enum.FeedOrder, merged.Symbol, merged)
	e.positionHandlers.Dispatch(ctx, enum.FeedPosition, snapshot.Symbol, snapshot)
}

// HandleAccountUpdate applies position entries received at eventTime. Orders
// that arrived earlier with the same transaction time are re-evaluated, so
// the outcome does not depend on which of the two events came first.
func (e *Engine) HandleAccountUpdate(ctx context.Context, updates []model.PositionUpdate, eventTime time.Time) {
	for _, u := range updates {
		b := e.book(u.Symbol)
		b.mu.Lock()
		if b.position == nil && u.Amount.IsZero() {
			b.mu.Unlock()
			continue
		}
		p := b.livePosition(u.Symbol)
		p.UpdateFromAccount(u, eventTime)
		for _, po := range p.Orders {
			if po.TradeUpdateTime.Equal(eventTime) {
				p.UpdateOrder(po.Order)
			}
		}
		snapshot := b.settle()
		b.mu.Unlock()

		e.positionHandlers.Dispatch(ctx, enum.FeedPosition, snapshot.Symbol, snapshot)
	}
}
