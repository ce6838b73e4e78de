package exchange

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/metrics"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadTimeout      = 30 * time.Second
	wsWriteTimeout     = 5 * time.Second
)

// ParseFunc decodes one websocket frame. ok=false marks a control message
// (ack, heartbeat, unrelated event) that carries no data.
type ParseFunc func(raw []byte) (u Update, ok bool, err error)

// wsProtocol captures what differs between kline websocket venues.
type wsProtocol struct {
	name      string
	url       func(symbol string) string
	subscribe func(symbol string) []byte
	// appPing is sent as a text frame every pingEvery; nil means websocket ping frames.
	appPing   []byte
	pingEvery time.Duration
	parse     ParseFunc
}

type wsAdapter struct {
	proto wsProtocol
	log   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	conn   *websocket.Conn
	closed bool
}

func newWSAdapter(proto wsProtocol, log zerolog.Logger) *wsAdapter {
	return &wsAdapter{proto: proto, log: log.With().Str("provider", proto.name).Logger()}
}

func (a *wsAdapter) Name() string { return a.proto.name }

func (a *wsAdapter) Start(symbol string, ev Events) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New(a.proto.name + ": adapter closed")
	}
	if a.cancel != nil {
		return errors.New(a.proto.name + ": adapter already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.run(ctx, symbol, ev)
	return nil
}

// Close cancels the dial or read loop and closes the socket. It does not wait
// for the loop goroutine; callbacks racing with Close are expected to be
// filtered by the caller.
func (a *wsAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.cancel != nil {
		a.cancel()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

func (a *wsAdapter) run(ctx context.Context, symbol string, ev Events) {
	err := a.consume(ctx, symbol, ev)
	if ctx.Err() != nil {
		return
	}
	ev.closed(err)
}

func (a *wsAdapter) consume(ctx context.Context, symbol string, ev Events) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, a.proto.url(symbol), nil)
	if err != nil {
		return err
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		conn.Close()
		return context.Canceled
	}
	a.conn = conn
	a.mu.Unlock()
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	// Writes are serialised through writeMu since the ping loop shares the socket.
	var writeMu sync.Mutex
	write := func(kind int, payload []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(kind, payload)
	}

	if a.proto.subscribe != nil {
		if err := write(websocket.TextMessage, a.proto.subscribe(symbol)); err != nil {
			return err
		}
	}

	a.log.Info().Str("symbol", symbol).Msg("connected market data stream")
	ev.open()

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(a.proto.pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				var err error
				if a.proto.appPing != nil {
					err = write(websocket.TextMessage, a.proto.appPing)
				} else {
					err = write(websocket.PingMessage, nil)
				}
				if err != nil {
					a.log.Warn().Err(err).Msg("ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		u, ok, err := a.proto.parse(message)
		if err != nil {
			metrics.MalformedMessagesTotal.WithLabelValues(a.proto.name).Inc()
			a.log.Warn().Err(err).Msg("dropping malformed message")
			continue
		}
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ev.update(u)
	}
}
