package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"flightdelay/ml"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientQueueLen = 64
)

var ErrFeedBacklog = errors.New("prediction feed backlog is full")

// PredictionEvent is pushed to feed subscribers after every served
// prediction request.
type PredictionEvent struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Generation uint64            `json:"generation"`
	Flights    []ml.FlightRecord `json:"flights"`
	Predict    []ml.DelayLabel   `json:"predict"`
}

type feedClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// FeedHub fans prediction events out to websocket subscribers. Slow clients
// are dropped instead of blocking the publisher.
type FeedHub struct {
	clients    map[*feedClient]struct{}
	broadcast  chan []byte
	register   chan *feedClient
	unregister chan *feedClient
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	metrics    *Metrics
}

// NewFeedHub returns a hub that does nothing until Run is started.
func NewFeedHub(logger *zap.Logger, metrics *Metrics) *FeedHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedHub{
		clients:    make(map[*feedClient]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Run dispatches events until ctx is cancelled, then disconnects every
// client.
func (h *FeedHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.clientsChanged()
			h.logger.Info("feed client connected", zap.String("client_id", client.id))

		case client := <-h.unregister:
			h.remove(client)
			h.clientsChanged()
			h.logger.Info("feed client disconnected", zap.String("client_id", client.id))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					delete(h.clients, client)
					close(client.send)
					h.logger.Warn("feed client too slow, dropped", zap.String("client_id", client.id))
				}
			}
			h.mu.Unlock()
			h.clientsChanged()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.clientsChanged()
			return
		}
	}
}

// HandleWebSocket upgrades the request and registers the connection.
func (h *FeedHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("feed upgrade failed", zap.Error(err))
		return
	}
	client := &feedClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientQueueLen),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go h.writePump(client)
	go h.readPump(client)
}

// Publish queues an event for every connected client without blocking.
func (h *FeedHub) Publish(event PredictionEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- payload:
		return nil
	default:
		return ErrFeedBacklog
	}
}

func (h *FeedHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *FeedHub) remove(client *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *FeedHub) clientsChanged() {
	if h.metrics != nil {
		h.metrics.SetFeedClients(h.ClientCount())
	}
}

func (h *FeedHub) writePump(c *feedClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("feed write failed", zap.String("client_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames; it exists to process control messages
// and notice disconnects.
func (h *FeedHub) readPump(c *feedClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("feed read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
	}
}
