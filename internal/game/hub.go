package game

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"
)

const writeDeadline = 10 * time.Second

// Client is one live viewer connection. All writes to the underlying
// conn go through Send, which serializes them.
type Client struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

// UserID reports which user the connection authenticated as.
func (c *Client) UserID() string {
	return c.userID
}

// Send delivers one event frame directly to this client.
func (c *Client) Send(event string, data any) error {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	return c.write(payload)
}

func (c *Client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub fans engine events out to every connected viewer. Delivery is best
// effort: no replay for reconnecting clients beyond the round_state
// snapshot they get on connect.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Envelope
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Str("user_id", client.userID).Int("total", total).Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Str("user_id", client.userID).Int("total", total).Msg("client disconnected")

		case msg := <-h.broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				h.log.Error().Err(err).Str("event", msg.Event).Msg("marshal failed")
				continue
			}
			h.mu.RLock()
			for client := range h.clients {
				go func(c *Client) {
					if err := c.write(payload); err != nil {
						h.log.Debug().Err(err).Str("user_id", c.userID).Msg("write failed")
					}
				}(client)
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues an event for every connected client. Never blocks; the
// frame is dropped if the hub is backed up.
func (h *Hub) Broadcast(event string, data any) {
	select {
	case h.broadcast <- Envelope{Event: event, Data: data}:
	default:
		h.log.Warn().Str("event", event).Msg("broadcast channel full, dropping")
	}
}

// RegisterClient attaches a connection to the hub and returns its client
// handle for direct sends.
func (h *Hub) RegisterClient(conn *websocket.Conn, userID string) *Client {
	client := &Client{conn: conn, userID: userID}
	h.register <- client
	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
