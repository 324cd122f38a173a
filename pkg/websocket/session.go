package websocket

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"connector/pkg/exception"

	"github.com/yanun0323/logs"
	"golang.org/x/time/rate"
)

const (
	_defaultConnectTimeout   = 10 * time.Second
	_defaultCloseDelay       = 3 * time.Second
	_defaultMessageInterval  = 250 * time.Millisecond
	_defaultResubscribeBatch = 20
)

// Option configures a Session.
type Option struct {
	// Name prefixes log lines.
	Name  string
	Hooks Hooks
	// ConnectTimeout bounds the Connect hook.
	ConnectTimeout time.Duration
	// IdleTimeout forces a reconnect when nothing was read for this long. 0 disables it.
	IdleTimeout time.Duration
	// Backoff paces retries after a failed connection cycle.
	Backoff Backoff
	// CloseDelay is the pause after an unclean close while reading.
	CloseDelay time.Duration
	// MessageInterval is the minimum gap between outbound frames.
	MessageInterval time.Duration
	// ResubscribeBatch caps the stream names per resubscribe frame.
	ResubscribeBatch int
}

// Session keeps one streaming connection alive, restoring its subscriptions
// after every reconnect. It runs until its context is cancelled.
type Session struct {
	opt     Option
	streams *subscriptions
	limiter *rate.Limiter

	state    atomic.Uint32
	nextID   atomic.Uint64
	lastRead atomic.Int64
	forced   atomic.Bool

	mu   sync.Mutex
	conn Conn
}

// NewSession validates the option and builds a session in DISCONNECTED state.
func NewSession(opt Option) (*Session, error) {
	if opt.Hooks.Connect == nil {
		return nil, exception.ErrWebSocketNilHook
	}
	if opt.Name == "" {
		opt.Name = "websocket"
	}
	if opt.ConnectTimeout <= 0 {
		opt.ConnectTimeout = _defaultConnectTimeout
	}
	if opt.Backoff == (Backoff{}) {
		opt.Backoff = DefaultBackoff()
	}
	if opt.CloseDelay < 0 {
		opt.CloseDelay = 0
	} else if opt.CloseDelay == 0 {
		opt.CloseDelay = _defaultCloseDelay
	}
	if opt.MessageInterval <= 0 {
		opt.MessageInterval = _defaultMessageInterval
	}
	if opt.ResubscribeBatch <= 0 {
		opt.ResubscribeBatch = _defaultResubscribeBatch
	}

	return &Session{
		opt:     opt,
		streams: newSubscriptions(),
		limiter: rate.NewLimiter(rate.Every(opt.MessageInterval), 1),
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Connected reports whether a transport is up.
func (s *Session) Connected() bool {
	st := s.State()
	return st == StateConnected || st == StateReading
}

// Run drives the connect/read/reconnect loop and blocks until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateDisconnected)

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setState(StateConnecting)
		conn, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt++
			logs.Errorf("[%s] connect failed, attempt: %d, err: %+v", s.opt.Name, attempt, err)
			if err := sleep(ctx, s.opt.Backoff.Next(attempt)); err != nil {
				return err
			}
			continue
		}
		attempt = 0

		s.setState(StateReading)
		logs.Infof("[%s] connected, streams: %d", s.opt.Name, s.streams.Count())
		err = s.read(ctx, conn)
		s.setConn(nil)
		_ = conn.Close(CloseNormal, "session_end")

		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case s.forced.Swap(false):
			logs.Infof("[%s] reconnect requested", s.opt.Name)
		case errors.Is(err, exception.ErrWebSocketConnectionClose):
			logs.Infof("[%s] connection closed, reconnect. err: %+v", s.opt.Name, err)
		default:
			logs.Warnf("[%s] connection lost, reconnect in %s. err: %+v", s.opt.Name, s.opt.CloseDelay, err)
			if err := sleep(ctx, s.opt.CloseDelay); err != nil {
				return err
			}
		}
	}
}

// Reconnect drops the current transport; Run dials again without pausing.
func (s *Session) Reconnect() {
	conn := s.currentConn()
	if conn == nil {
		return
	}
	s.forced.Store(true)
	_ = conn.Close(CloseNormal, "reconnect")
}

// Send writes one frame, waiting for the outbound pacing slot first.
func (s *Session) Send(ctx context.Context, payload []byte) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	conn := s.currentConn()
	if conn == nil {
		return exception.ErrWebSocketNotConnected
	}
	return conn.Write(ctx, MessageText, payload)
}

// Subscribe tracks the streams and, when connected, sends one SUBSCRIBE frame
// for the ones not tracked yet. Callers paginate large requests.
func (s *Session) Subscribe(ctx context.Context, streams ...string) error {
	added := s.streams.Add(streams...)
	if len(added) == 0 || !s.Connected() {
		return nil
	}
	return s.sendControl(ctx, MethodSubscribe, added)
}

// Unsubscribe stops tracking the streams and, when connected, sends one
// UNSUBSCRIBE frame.
func (s *Session) Unsubscribe(ctx context.Context, streams ...string) error {
	removed := s.streams.Remove(streams...)
	if len(removed) == 0 || !s.Connected() {
		return nil
	}
	return s.sendControl(ctx, MethodUnsubscribe, removed)
}

// Resubscribe resends every tracked stream in batches.
func (s *Session) Resubscribe(ctx context.Context) error {
	for _, page := range Paginate(s.streams.List(), s.opt.ResubscribeBatch) {
		if err := s.sendControl(ctx, MethodSubscribe, page); err != nil {
			return err
		}
	}
	return nil
}

// Streams returns the tracked stream names.
func (s *Session) Streams() []string {
	return s.streams.List()
}

// LastRead returns the time of the latest inbound frame.
func (s *Session) LastRead() time.Time {
	return time.Unix(0, s.lastRead.Load())
}

func (s *Session) sendControl(ctx context.Context, method string, params []string) error {
	payload, err := encodeControl(method, params, s.nextID.Add(1))
	if err != nil {
		return err
	}
	logs.Debugf("[%s] send %s %v", s.opt.Name, method, params)
	return s.Send(ctx, payload)
}

func (s *Session) connect(ctx context.Context) (Conn, error) {
	hooks := s.opt.Hooks
	if hooks.BeforeConnect != nil {
		if err := hooks.BeforeConnect(ctx); err != nil {
			return nil, err
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.opt.ConnectTimeout)
	conn, err := hooks.Connect(dialCtx)
	cancel()
	if err != nil {
		return nil, err
	}
	s.setConn(conn)
	s.setState(StateConnected)

	fail := func(err error) (Conn, error) {
		s.setConn(nil)
		_ = conn.Close(CloseNormal, "hook_failed")
		return nil, err
	}

	if hooks.OnConnect != nil {
		if err := hooks.OnConnect(ctx, s); err != nil {
			return fail(err)
		}
	}

	onReconnect := hooks.OnReconnect
	if onReconnect == nil {
		onReconnect = func(ctx context.Context, s *Session) error { return s.Resubscribe(ctx) }
	}
	if err := onReconnect(ctx, s); err != nil {
		return fail(err)
	}
	return conn, nil
}

func (s *Session) read(ctx context.Context, conn Conn) error {
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.touch()
	var idle atomic.Bool
	go s.watch(readCtx, conn, &idle)

	for {
		_, payload, err := conn.Read(readCtx)
		if err != nil {
			if idle.Load() {
				return exception.ErrWebSocketIdleTimeout
			}
			return err
		}
		s.touch()
		s.dispatch(readCtx, payload)
	}
}

// watch closes conn when ctx ends or, with an idle timeout, when nothing was
// read for too long.
func (s *Session) watch(ctx context.Context, conn Conn, idle *atomic.Bool) {
	if s.opt.IdleTimeout <= 0 {
		<-ctx.Done()
		_ = conn.Close(CloseNormal, "session_end")
		return
	}

	ticker := time.NewTicker(max(s.opt.IdleTimeout/4, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(CloseNormal, "session_end")
			return
		case <-ticker.C:
			if time.Since(s.LastRead()) < s.opt.IdleTimeout {
				continue
			}
			logs.Warnf("[%s] no message for %s, reconnect", s.opt.Name, s.opt.IdleTimeout)
			idle.Store(true)
			_ = conn.Close(CloseGoingAway, "idle")
			return
		}
	}
}

// dispatch hands one frame to OnMessage. A frame carries exactly one JSON
// document, which may span several lines.
func (s *Session) dispatch(ctx context.Context, payload []byte) {
	if s.opt.Hooks.OnMessage == nil {
		return
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return
	}
	s.handle(ctx, payload)
}

func (s *Session) handle(ctx context.Context, msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("[%s] on message panic: %v, msg: %s", s.opt.Name, r, msg)
		}
	}()
	if err := s.opt.Hooks.OnMessage(ctx, msg); err != nil {
		logs.Errorf("[%s] on message, err: %+v, msg: %s", s.opt.Name, err, msg)
	}
}

func (s *Session) touch() {
	s.lastRead.Store(time.Now().UnixNano())
}

func (s *Session) setState(state State) {
	s.state.Store(uint32(state))
}

func (s *Session) setConn(conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Session) currentConn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
