package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// Handler consumes the payload of one push event type.
type Handler func(payload json.RawMessage)

// Bus owns the single realtime connection of a session and routes typed push
// events to registered handlers. It knows nothing about chat semantics.
//
// Handlers live in a table independent of the connection, so a reconnect
// keeps every registration; registering a type twice deliberately replaces
// the previous handler (last registration wins).
type Bus struct {
	url    string
	dialer *websocket.Dialer
	jar    http.CookieJar
	log    *zap.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	handlers map[string]Handler
	closed   bool
}

// NewBus builds a disconnected bus. The cookie jar carries the backend
// session cookie into the websocket handshake; it may be nil.
func NewBus(url string, jar http.CookieJar, log *zap.Logger) *Bus {
	return &Bus{
		url:      url,
		dialer:   &websocket.Dialer{Jar: jar, HandshakeTimeout: 10 * time.Second},
		jar:      jar,
		log:      log,
		handlers: make(map[string]Handler),
	}
}

// On registers the handler for an event type, replacing any previous one.
func (b *Bus) On(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[eventType]; exists {
		b.log.Debug("replacing push handler", zap.String("type", eventType))
	}
	b.handlers[eventType] = handler
}

// Off removes the handler for an event type.
func (b *Bus) Off(eventType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, eventType)
}

// Connect establishes the realtime connection and starts the read loop. The
// loop redials with exponential backoff after transport-level closures until
// Disconnect is called.
func (b *Bus) Connect(ctx context.Context) error {
	conn, err := b.dial(ctx)
	if err != nil {
		return errors.Wrap(err, "realtime connect")
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	observability.SetWSConnected(true)

	go b.readLoop(ctx, conn)
	return nil
}

func (b *Bus) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
	return conn, err
}

func (b *Bus) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			observability.SetWSConnected(false)
			if b.isClosed() {
				return
			}
			b.log.Warn("realtime connection lost", zap.Error(err))
			conn = b.redial(ctx)
			if conn == nil {
				return
			}
			continue
		}
		b.dispatch(data)
	}
}

// redial blocks until a fresh connection is up or the bus is shut down.
func (b *Bus) redial(ctx context.Context) *websocket.Conn {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0 // keep trying for the session's lifetime

	var conn *websocket.Conn
	op := func() error {
		if b.isClosed() {
			return backoff.Permanent(errors.New("bus closed"))
		}
		c, err := b.dial(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		b.log.Warn("realtime reconnect abandoned", zap.Error(err))
		return nil
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	observability.SetWSConnected(true)
	observability.IncWSReconnect()
	b.log.Info("realtime connection re-established")
	return conn
}

// dispatch decodes one inbound frame and routes it. Malformed payloads are
// dropped with a diagnostic; they never stop the loop or touch state.
func (b *Bus) dispatch(data []byte) {
	var event models.PushEvent
	if err := json.Unmarshal(data, &event); err != nil {
		observability.IncMalformedEvent()
		b.log.Warn("dropping undecodable push payload", zap.Error(err))
		return
	}
	if event.Type == "" {
		observability.IncMalformedEvent()
		b.log.Warn("dropping push payload without type")
		return
	}

	b.mu.RLock()
	handler, ok := b.handlers[event.Type]
	b.mu.RUnlock()
	if !ok {
		observability.IncIgnoredEvent()
		b.log.Debug("ignoring push event of unknown type", zap.String("type", event.Type))
		return
	}

	observability.IncPushEvent(event.Type)
	handler(event.Payload)
}

// Send writes a payload to the push channel. Delivery is best effort: a
// closed connection only logs. Anything that mutates authoritative state
// must go through the request/response API instead.
func (b *Bus) Send(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Warn("not sending unmarshalable payload", zap.Error(err))
		return
	}

	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil {
		b.log.Warn("realtime connection not open, dropping outbound payload")
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		b.log.Warn("realtime write failed", zap.Error(err))
	}
}

// Disconnect releases the connection and clears all handlers. Called exactly
// once at session teardown.
func (b *Bus) Disconnect() {
	b.mu.Lock()
	b.closed = true
	conn := b.conn
	b.conn = nil
	b.handlers = make(map[string]Handler)
	b.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session teardown"),
			time.Now().Add(time.Second))
		conn.Close()
	}
	observability.SetWSConnected(false)
}

func (b *Bus) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
