package api

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shizukutanaka/resalloc/internal/automation"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 64
)

// EventSource is anything that publishes automation events.
type EventSource interface {
	OnEvent(handler automation.EventHandler) func()
}

// StreamMessage is the frame written to WebSocket clients.
type StreamMessage struct {
	Type         string            `json:"type"`
	ConnectionID string            `json:"connection_id,omitempty"`
	Event        *automation.Event `json:"event,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// EventStreamer fans controller events out to WebSocket clients. A slow
// client loses events instead of stalling the others.
type EventStreamer struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*streamClient
	closed  bool

	unsubscribe func()

	sent    atomic.Uint64
	dropped atomic.Uint64
}

type streamClient struct {
	id   string
	conn *websocket.Conn
	send chan automation.Event
	done chan struct{}
	once sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() { close(c.done) })
}

// NewEventStreamer subscribes to source and accepts upgrades from the given
// browser origins. Requests without an Origin header are accepted.
func NewEventStreamer(logger *zap.Logger, source EventSource, allowedOrigins []string) *EventStreamer {
	es := &EventStreamer{
		logger:  logger,
		clients: make(map[string]*streamClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed(allowedOrigins, origin)
			},
		},
	}
	es.unsubscribe = source.OnEvent(es.broadcast)
	return es
}

// ServeHTTP upgrades the connection and streams events until the client
// goes away or the streamer is closed.
func (es *EventStreamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := es.upgrader.Upgrade(w, r, nil)
	if err != nil {
		es.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &streamClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan automation.Event, clientBuffer),
		done: make(chan struct{}),
	}

	es.mu.Lock()
	if es.closed {
		es.mu.Unlock()
		conn.Close()
		return
	}
	es.clients[client.id] = client
	es.mu.Unlock()

	es.logger.Info("Event stream client connected",
		zap.String("connection_id", client.id),
		zap.String("remote_addr", r.RemoteAddr),
	)

	go es.writePump(client)
	es.readPump(client)
}

// Clients returns the number of connected clients.
func (es *EventStreamer) Clients() int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.clients)
}

// Sent returns the number of events written to clients.
func (es *EventStreamer) Sent() uint64 { return es.sent.Load() }

// Dropped returns the number of events not delivered to slow clients.
func (es *EventStreamer) Dropped() uint64 { return es.dropped.Load() }

// Close unsubscribes from the source and disconnects every client.
func (es *EventStreamer) Close() {
	es.mu.Lock()
	if es.closed {
		es.mu.Unlock()
		return
	}
	es.closed = true
	clients := make([]*streamClient, 0, len(es.clients))
	for _, c := range es.clients {
		clients = append(clients, c)
	}
	es.mu.Unlock()

	es.unsubscribe()
	for _, c := range clients {
		c.close()
	}
}

func (es *EventStreamer) broadcast(ev automation.Event) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	for _, c := range es.clients {
		select {
		case c.send <- ev:
		default:
			es.dropped.Add(1)
			es.logger.Warn("Event stream client too slow, event dropped",
				zap.String("connection_id", c.id),
				zap.String("kind", string(ev.Kind)),
			)
		}
	}
}

func (es *EventStreamer) remove(c *streamClient) {
	es.mu.Lock()
	delete(es.clients, c.id)
	es.mu.Unlock()
	c.close()
}

func (es *EventStreamer) readPump(c *streamClient) {
	defer func() {
		es.remove(c)
		es.logger.Info("Event stream client disconnected", zap.String("connection_id", c.id))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// Clients only send control frames; anything else is discarded.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (es *EventStreamer) writePump(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	if err := es.write(c, StreamMessage{Type: "welcome", ConnectionID: c.id, Timestamp: time.Now()}); err != nil {
		return
	}

	for {
		select {
		case ev := <-c.send:
			if err := es.write(c, StreamMessage{Type: "event", Event: &ev, Timestamp: time.Now()}); err != nil {
				return
			}
			es.sent.Add(1)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

func (es *EventStreamer) write(c *streamClient, msg StreamMessage) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		es.logger.Debug("Event stream write failed",
			zap.String("connection_id", c.id),
			zap.Error(err),
		)
		return err
	}
	return nil
}
