package stream

import (
	"context"
	"sync"
	"time"

	"connector/internal/binance"
	"connector/internal/obs"
	"connector/internal/reconcile"
	"connector/pkg/exception"
	"connector/pkg/rest"
	"connector/pkg/websocket"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	_defaultKeepAlive      = 30 * time.Minute
	_closeListenKeyTimeout = 5 * time.Second
)

type PrivateOption struct {
	Venue  binance.Venue
	Client *rest.Client
	Engine *reconcile.Engine
	// Dial overrides the default gorilla dialer. url carries the listen key.
	Dial func(ctx context.Context, url string) (websocket.Conn, error)
	// KeepAlive is the listen key refresh interval.
	KeepAlive   time.Duration
	IdleTimeout time.Duration
	Metrics     *obs.Metrics
}

// Private keeps the user data session of one account. Every connection
// cycle obtains a listen key first.
type Private struct {
	opt     PrivateOption
	session *websocket.Session

	mu        sync.Mutex
	listenKey string
}

func NewPrivate(opt PrivateOption) (*Private, error) {
	if opt.Venue == nil || opt.Client == nil || opt.Engine == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "private stream needs a venue, a client and an engine")
	}
	if opt.KeepAlive <= 0 {
		opt.KeepAlive = _defaultKeepAlive
	}
	if opt.Dial == nil {
		opt.Dial = func(ctx context.Context, url string) (websocket.Conn, error) {
			return websocket.Dialer{URL: url}.Dial(ctx)
		}
	}

	p := &Private{opt: opt}
	session, err := websocket.NewSession(websocket.Option{
		Name: "private " + string(opt.Venue.Market()),
		Hooks: websocket.Hooks{
			BeforeConnect: p.refreshListenKey,
			Connect:       p.connect,
			OnMessage:     p.handleMessage,
		},
		IdleTimeout: opt.IdleTimeout,
	})
	if err != nil {
		return nil, err
	}
	p.session = session

	opt.Engine.OnListenKeyExpired(func() {
		p.setListenKey("")
		p.session.Reconnect()
	})
	return p, nil
}

func (p *Private) handleMessage(ctx context.Context, msg []byte) error {
	if ev, err := binance.Peek(msg); err == nil && ev.Type != "" {
		p.opt.Metrics.ObserveEvent(ev.Type, eventTime(ev.Time))
	}
	if err := p.opt.Engine.HandleMessage(ctx, msg); err != nil {
		p.opt.Metrics.IncDropped()
		return err
	}
	return nil
}

func (p *Private) Session() *websocket.Session {
	return p.session
}

// Run keeps the session and the listen key alive until ctx is done, then
// closes the listen key.
func (p *Private) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.keepAlive(ctx)
	}()

	err := p.session.Run(ctx)
	<-done

	if key := p.ListenKey(); key != "" {
		closeCtx, cancel := context.WithTimeout(context.Background(), _closeListenKeyTimeout)
		defer cancel()
		if err := binance.CloseListenKey(closeCtx, p.opt.Venue, p.opt.Client, key); err != nil {
			logs.Warnf("close listen key, err: %+v", err)
		}
	}
	return err
}

// ListenKey returns the listen key of the current cycle.
func (p *Private) ListenKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listenKey
}

func (p *Private) setListenKey(key string) {
	p.mu.Lock()
	p.listenKey = key
	p.mu.Unlock()
}

func (p *Private) refreshListenKey(ctx context.Context) error {
	key, err := binance.CreateListenKey(ctx, p.opt.Venue, p.opt.Client)
	if err != nil {
		return err
	}
	p.setListenKey(key)
	return nil
}

func (p *Private) connect(ctx context.Context) (websocket.Conn, error) {
	key := p.ListenKey()
	if key == "" {
		return nil, exception.ErrEmptyListenKey
	}
	return p.opt.Dial(ctx, p.opt.Venue.PrivateWebsocketURL()+"/"+key)
}

// keepAlive extends the listen key every KeepAlive. A rejected extension
// forces a reconnect, which creates a fresh key.
func (p *Private) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(p.opt.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			key := p.ListenKey()
			if key == "" {
				continue
			}
			if err := binance.KeepAliveListenKey(ctx, p.opt.Venue, p.opt.Client, key); err != nil {
				if ctx.Err() != nil {
					return
				}
				logs.Errorf("keep alive listen key, err: %+v", err)
				p.setListenKey("")
				p.session.Reconnect()
				continue
			}
			logs.Debugf("listen key extended")
		}
	}
}
