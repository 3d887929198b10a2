package server

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/phroun/faderbank/internal/models"
	"github.com/phroun/faderbank/internal/protocol"
)

// Client represents a connected WebSocket session.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	user   *models.User
	send   chan []byte
	subs   map[string]bool // Subscribed profile IDs
	subsMu sync.RWMutex
}

// Hub manages WebSocket sessions and per-profile event fan-out. Delivery
// is best effort: a slow subscriber is dropped and converges again from
// its next poll.
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	clientsMu  sync.RWMutex
	rooms      map[string]map[*Client]bool // profileID -> clients
	roomsMu    sync.RWMutex
	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomMessage
}

type roomMessage struct {
	profileID string
	data      []byte
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomMessage, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			h.logger.Info("session connected", zap.String("user", client.user.LoginName))

		case client := <-h.unregister:
			h.drop(client)

		case msg := <-h.broadcast:
			h.roomsMu.RLock()
			targets := make([]*Client, 0, len(h.rooms[msg.profileID]))
			for client := range h.rooms[msg.profileID] {
				targets = append(targets, client)
			}
			h.roomsMu.RUnlock()

			for _, client := range targets {
				select {
				case client.send <- msg.data:
				default:
					// Buffer full; disconnect and let the next poll
					// bring the session back in sync.
					h.drop(client)
				}
			}
		}
	}
}

// Subscribe adds a client to a profile room.
func (h *Hub) Subscribe(client *Client, profileID string) {
	h.roomsMu.Lock()
	if h.rooms[profileID] == nil {
		h.rooms[profileID] = make(map[*Client]bool)
	}
	h.rooms[profileID][client] = true
	h.roomsMu.Unlock()

	client.subsMu.Lock()
	client.subs[profileID] = true
	client.subsMu.Unlock()
}

// Unsubscribe removes a client from a profile room.
func (h *Hub) Unsubscribe(client *Client, profileID string) {
	h.removeFromRoom(client, profileID)

	client.subsMu.Lock()
	delete(client.subs, profileID)
	client.subsMu.Unlock()
}

// drop removes a client from the hub and all of its profile rooms. Only
// called from the Run loop.
func (h *Hub) drop(client *Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.clientsMu.Unlock()
	if !ok {
		return
	}

	client.subsMu.RLock()
	for profileID := range client.subs {
		h.removeFromRoom(client, profileID)
	}
	client.subsMu.RUnlock()
	h.logger.Info("session disconnected", zap.String("user", client.user.LoginName))
}

func (h *Hub) removeFromRoom(client *Client, profileID string) {
	h.roomsMu.Lock()
	if clients, ok := h.rooms[profileID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, profileID)
		}
	}
	h.roomsMu.Unlock()
}

// Broadcast sends a typed event to every session subscribed to a profile.
func (h *Hub) Broadcast(profileID string, msgType protocol.MessageType, data interface{}) {
	env, err := protocol.NewEnvelope(msgType, data)
	if err != nil {
		h.logger.Error("failed to create event envelope", zap.Error(err))
		return
	}

	raw, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.Error(err))
		return
	}

	h.broadcast <- &roomMessage{
		profileID: profileID,
		data:      raw,
	}
}

// Subscriptions returns the profile IDs a client is subscribed to.
func (h *Hub) Subscriptions(client *Client) []string {
	client.subsMu.RLock()
	defer client.subsMu.RUnlock()
	subs := make([]string, 0, len(client.subs))
	for profileID := range client.subs {
		subs = append(subs, profileID)
	}
	return subs
}

// NewClient creates a new client for the hub.
func (h *Hub) NewClient(conn *websocket.Conn, user *models.User) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		user: user,
		send: make(chan []byte, 256),
		subs: make(map[string]bool),
	}
}

// Register registers a client with the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister unregisters a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Send sends data to the client.
func (c *Client) Send(data []byte) {
	select {
	case c.send <- data:
	default:
		// Buffer full
	}
}

// SendEnvelope sends a protocol envelope to the client.
func (c *Client) SendEnvelope(msgType protocol.MessageType, data interface{}) error {
	env, err := protocol.NewEnvelope(msgType, data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.Send(raw)
	return nil
}

// SendError sends an error message to the client.
func (c *Client) SendError(code, message string) {
	c.SendEnvelope(protocol.TypeError, protocol.ErrorMessage{
		Code:    code,
		Message: message,
	})
}

// User returns the client's user.
func (c *Client) User() *models.User {
	return c.user
}

// Conn returns the client's WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the client's send channel.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}
