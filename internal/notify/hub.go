package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrHubBusy is returned when the broadcast buffer is full and a message
// was dropped.
var ErrHubBusy = errors.New("notify: hub broadcast buffer full")

const broadcastBuffer = 64

// Event is one message pushed to websocket clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Event types.
const (
	EventInterestCredited = "interest_credited"
	EventSnapshot         = "snapshot"
)

type client struct {
	householdID string
	memberID    string
	conn        *websocket.Conn
}

// message goes to every client of the household, or only to the clients
// watching memberID when it is set.
type message struct {
	householdID string
	memberID    string
	payload     []byte
}

func (m message) deliversTo(c *client) bool {
	if c.householdID != m.householdID {
		return false
	}
	return m.memberID == "" || c.memberID == m.memberID
}

// Hub keeps the websocket clients of each household and broadcasts events
// to them. Writes happen on the hub goroutine started by Start.
type Hub struct {
	clients    map[*websocket.Conn]*client
	broadcast  chan message
	register   chan *client
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.Mutex
	log        zerolog.Logger
}

// NewHub creates a Hub. Call Start before registering clients.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan message, broadcastBuffer),
		register:   make(chan *client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Start runs the hub loop until ctx is done. Remaining clients are closed
// on exit, and later Register/Unregister calls return without blocking.
func (h *Hub) Start(ctx context.Context) {
	go func() {
		defer close(h.done)
		for {
			select {
			case <-ctx.Done():
				h.mu.Lock()
				for conn := range h.clients {
					conn.Close()
					delete(h.clients, conn)
				}
				h.mu.Unlock()
				return
			case c := <-h.register:
				h.mu.Lock()
				h.clients[c.conn] = c
				total := len(h.clients)
				h.mu.Unlock()
				h.log.Debug().Str("household_id", c.householdID).Int("clients", total).Msg("WebSocket client connected")
			case conn := <-h.unregister:
				h.mu.Lock()
				if _, ok := h.clients[conn]; ok {
					delete(h.clients, conn)
					conn.Close()
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.log.Debug().Int("clients", total).Msg("WebSocket client disconnected")
			case msg := <-h.broadcast:
				h.mu.Lock()
				for conn, c := range h.clients {
					if !msg.deliversTo(c) {
						continue
					}
					if err := conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
						h.log.Warn().Err(err).Str("household_id", c.householdID).Msg("Error sending message to client")
						conn.Close()
						delete(h.clients, conn)
					}
				}
				h.mu.Unlock()
			}
		}
	}()
}

// Register adds a client connection for a household. It receives
// household-wide events only.
func (h *Hub) Register(householdID string, conn *websocket.Conn) {
	h.RegisterMember(householdID, "", conn)
}

// RegisterMember adds a client watching one member. It receives
// household-wide events plus the events published for that member.
// Once the hub has stopped, the connection is closed instead.
func (h *Hub) RegisterMember(householdID, memberID string, conn *websocket.Conn) {
	select {
	case h.register <- &client{householdID: householdID, memberID: memberID, conn: conn}:
	case <-h.done:
		conn.Close()
	}
}

// Unregister removes and closes a client connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
		conn.Close()
	}
}

// Clients returns the number of connections registered for a household.
func (h *Hub) Clients(householdID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.clients {
		if c.householdID == householdID {
			n++
		}
	}
	return n
}

// Publish queues an event for every client of the household. It never
// blocks: when the buffer is full the event is dropped.
func (h *Hub) Publish(householdID string, ev Event) error {
	return h.publish(message{householdID: householdID}, ev)
}

// PublishMember queues an event for the clients watching one member.
func (h *Hub) PublishMember(householdID, memberID string, ev Event) error {
	return h.publish(message{householdID: householdID, memberID: memberID}, ev)
}

func (h *Hub) publish(msg message, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("Publish: marshal %s event: %w", ev.Type, err)
	}
	msg.payload = payload
	select {
	case h.broadcast <- msg:
		return nil
	default:
		return ErrHubBusy
	}
}

// Notify implements Notifier.
func (h *Hub) Notify(ctx context.Context, n Notification) error {
	return h.Publish(n.HouseholdID, Event{Type: EventInterestCredited, Data: n})
}
