// Package relay is the thin server editor clients connect to. It keeps one
// hub per open file, persists saves as raw file bytes and rebroadcasts them;
// it never merges concurrent edits.
package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/uminmay/collaborative-ai-editor/internal/model"
)

// Client represents a WebSocket client connection.
type Client struct {
	id   string
	user model.User
	conn *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	closed     bool
	path       string
	alias      string
	cursor     int
	cursorAt   time.Time
	lastActive time.Time
}

// NewClient creates a new WebSocket client for user.
func NewClient(conn *websocket.Conn, user model.User) *Client {
	return &Client{
		id:   uuid.NewString(),
		user: user,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// Send queues a message to be sent to the client.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		// Buffer full, close the client
		c.closeLocked()
	}
}

// Close closes the client's send channel.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// User returns the identity behind the connection.
func (c *Client) User() model.User {
	return c.user
}

// Path returns the normalized path of the file the client has loaded, or "".
func (c *Client) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// Alias returns the loaded path as the client spelled it. Frames addressed
// to the client carry this spelling.
func (c *Client) Alias() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alias
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

func (c *Client) setPath(path, alias string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
	c.alias = alias
	c.cursor = 0
	c.cursorAt = time.Time{}
	c.lastActive = now
}

func (c *Client) touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActive = now
}

// moveCursor records position if it is worth broadcasting: either enough
// time has passed since the last broadcast or the caret jumped.
func (c *Client) moveCursor(position int, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	jump := position - c.cursor
	if jump < 0 {
		jump = -jump
	}
	if now.Sub(c.cursorAt) <= cursorThrottle && jump <= cursorJump {
		return false
	}
	c.cursor = position
	c.cursorAt = now
	c.lastActive = now
	return true
}

func (c *Client) presence() (cursor int, lastActive time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor, c.lastActive
}

// Hub manages the client connections editing one file.
type Hub struct {
	path    string
	clients map[*Client]bool
	mu      sync.RWMutex
}

// NewHub creates a new Hub for the given path.
func NewHub(path string) *Hub {
	return &Hub{
		path:    path,
		clients: make(map[*Client]bool),
	}
}

// Path returns the file path for this hub.
func (h *Hub) Path() string {
	return h.path
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client from the hub and returns how many remain.
func (h *Hub) Unregister(client *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
	return len(h.clients)
}

// Broadcast sends data to every client except exclude.
func (h *Hub) Broadcast(data []byte, exclude *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client != exclude {
			client.Send(data)
		}
	}
}

// Clients returns a snapshot of the connected clients.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HubManager manages one hub per open file.
type HubManager struct {
	hubs map[string]*Hub
	mu   sync.RWMutex
}

// NewHubManager creates a new HubManager.
func NewHubManager() *HubManager {
	return &HubManager{
		hubs: make(map[string]*Hub),
	}
}

// Join registers client with the hub for path, creating it if needed.
func (m *HubManager) Join(path string, client *Client) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	hub, ok := m.hubs[path]
	if !ok {
		hub = NewHub(path)
		m.hubs[path] = hub
	}
	hub.Register(client)
	return hub
}

// Leave unregisters client from the hub for path, dropping the hub once it
// is empty. It returns the hub, or nil if there was none.
func (m *HubManager) Leave(path string, client *Client) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	hub, ok := m.hubs[path]
	if !ok {
		return nil
	}
	if hub.Unregister(client) == 0 {
		delete(m.hubs, path)
	}
	return hub
}

// Get returns the hub for path, or nil if not found.
func (m *HubManager) Get(path string) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[path]
}

// Count returns the number of files with connected editors.
func (m *HubManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hubs)
}

// Close closes all clients of all hubs.
func (m *HubManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hub := range m.hubs {
		for _, client := range hub.Clients() {
			client.Close()
		}
	}
	m.hubs = make(map[string]*Hub)
}
