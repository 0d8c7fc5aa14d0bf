package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mathiu1/aadhavmadhav-sub000/internal/metrics"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/types"
)

const (
	writeTimeout = 10 * time.Second

	// Reconnect backoff
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// ErrNotConnected is returned by Emit while the socket is down. Callers
// treat it as a signaling failure for the current operation; the client
// keeps reconnecting in the background.
var ErrNotConnected = errors.New("signaling: not connected")

// HandlerFunc processes one inbound event. Handlers run synchronously on
// the read loop, so events are always applied in arrival order. Alias so
// consumers can accept the client behind their own narrow interface.
type HandlerFunc = func(data json.RawMessage)

// Client maintains the persistent connection to the signaling/presence
// server and dispatches inbound events to registered handlers.
type Client struct {
	url    string
	token  string
	logger zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool // permanently closed, no reconnects

	handlersMu sync.RWMutex
	handlers   map[string][]*handlerEntry
	nextID     int

	// Metrics
	eventsReceived int64
	eventsEmitted  int64
	reconnects     int64
}

type handlerEntry struct {
	id int
	fn HandlerFunc
}

// NewClient creates a signaling client for the given websocket URL.
func NewClient(url, token string, logger zerolog.Logger) *Client {
	return &Client{
		url:      url,
		token:    token,
		logger:   logger.With().Str("component", "signaling").Logger(),
		handlers: make(map[string][]*handlerEntry),
	}
}

// On registers a handler for an event and returns the function that
// removes it again. Registration and removal come in matched pairs on
// session start/end so handlers never leak across sessions.
func (c *Client) On(event string, fn HandlerFunc) (off func()) {
	c.handlersMu.Lock()
	c.nextID++
	entry := &handlerEntry{id: c.nextID, fn: fn}
	c.handlers[event] = append(c.handlers[event], entry)
	c.handlersMu.Unlock()

	return func() {
		c.handlersMu.Lock()
		defer c.handlersMu.Unlock()
		entries := c.handlers[event]
		for i, e := range entries {
			if e.id == entry.id {
				c.handlers[event] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Emit sends an event to the signaling server.
func (c *Client) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(types.Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return err
	}
	c.eventsEmitted++
	metrics.Get().RecordSignalEmit()
	return nil
}

// Connected reports whether the socket is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run dials the server and keeps the connection alive until ctx is
// cancelled or Close is called, reconnecting with exponential backoff.
func (c *Client) Run(ctx context.Context) {
	reconnectDelay := initialReconnectDelay

	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		select {
		case <-ctx.Done():
			c.Close()
			return
		default:
		}

		if err := c.connect(); err != nil {
			c.logger.Debug().Err(err).Dur("retry_in", reconnectDelay).Msg("connection failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			// Exponential backoff
			reconnectDelay *= 2
			if reconnectDelay > maxReconnectDelay {
				reconnectDelay = maxReconnectDelay
			}
			c.mu.Lock()
			c.reconnects++
			c.mu.Unlock()
			metrics.Get().RecordSignalReconnect()
			continue
		}

		// Reset backoff on successful connection
		reconnectDelay = initialReconnectDelay

		c.readLoop(ctx)

		// Connection lost, try to reconnect
		c.mu.Lock()
		c.connected = false
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
	}
}

// connect establishes the websocket connection
func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.url, header)
	if err != nil {
		return err
	}

	c.conn = conn
	c.connected = true
	c.logger.Info().Str("url", c.url).Msg("signaling connected")
	return nil
}

// Close permanently closes the connection and prevents reconnects
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// readLoop reads frames until the connection drops and dispatches them.
// Dispatch is synchronous: the ordering guarantee for events of one call
// attempt depends on it.
func (c *Client) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("signaling read error")
			}
			return
		}
		c.dispatch(message)
	}
}

// dispatch decodes an envelope and invokes the registered handlers.
func (c *Client) dispatch(message []byte) {
	var env types.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.logger.Warn().Err(err).Msg("malformed signaling frame")
		return
	}

	c.handlersMu.RLock()
	entries := make([]*handlerEntry, len(c.handlers[env.Event]))
	copy(entries, c.handlers[env.Event])
	c.handlersMu.RUnlock()

	c.mu.Lock()
	c.eventsReceived++
	c.mu.Unlock()
	metrics.Get().RecordSignalEventReceived()

	if len(entries) == 0 {
		c.logger.Debug().Str("event", env.Event).Msg("no handler for event")
		return
	}
	for _, e := range entries {
		e.fn(env.Data)
		metrics.Get().RecordSignalEventDispatched()
	}
}

// Stats returns receive/emit/reconnect counters.
func (c *Client) Stats() (received, emitted, reconnects int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eventsReceived, c.eventsEmitted, c.reconnects
}
