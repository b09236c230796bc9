package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uminmay/collaborative-ai-editor/internal/model"
	"github.com/uminmay/collaborative-ai-editor/internal/protocol"
	"github.com/uminmay/collaborative-ai-editor/internal/repository"
	"github.com/uminmay/collaborative-ai-editor/internal/suggest"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20

	// Cursor moves are rebroadcast at most this often unless the caret jumps.
	cursorThrottle = 50 * time.Millisecond
	cursorJump     = 10

	// DefaultIdleTimeout hides editors from presence lists after inactivity.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultCompletionTimeout bounds one suggestion request.
	DefaultCompletionTimeout = 10 * time.Second
)

// Options configures a Handler.
type Options struct {
	Files             *FileStore
	Users             *repository.UserRepository
	Activity          *repository.ActivityRepository
	Completer         suggest.Completer
	IdleTimeout       time.Duration
	CompletionTimeout time.Duration
	Logger            *slog.Logger
	CheckOrigin       func(r *http.Request) bool
}

// Handler serves editor WebSocket connections.
type Handler struct {
	hubs     *HubManager
	files    *FileStore
	users    *repository.UserRepository
	activity *repository.ActivityRepository
	complete suggest.Completer
	idle     time.Duration
	timeout  time.Duration
	log      *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewHandler creates a new WebSocket handler.
func NewHandler(opts Options) *Handler {
	if opts.Completer == nil {
		opts.Completer = suggest.Disabled{}
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.CompletionTimeout <= 0 {
		opts.CompletionTimeout = DefaultCompletionTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Handler{
		hubs:     NewHubManager(),
		files:    opts.Files,
		users:    opts.Users,
		activity: opts.Activity,
		complete: opts.Completer,
		idle:     opts.IdleTimeout,
		timeout:  opts.CompletionTimeout,
		log:      opts.Logger.With("component", "relay"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		now: time.Now,
	}
}

// Hubs exposes the per-file hubs.
func (h *Handler) Hubs() *HubManager {
	return h.hubs
}

// HandleConnection upgrades the request and serves the connection until the
// peer goes away. The user is named by the "user" query parameter.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	username := r.URL.Query().Get("user")
	if username == "" {
		http.Error(w, "user is required", http.StatusUnauthorized)
		return nil
	}

	user, err := h.users.GetOrCreate(r.Context(), username)
	if err != nil {
		http.Error(w, "failed to resolve user", http.StatusInternalServerError)
		return fmt.Errorf("resolve user %q: %w", username, err)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn, *user)
	h.log.Info("editor connected", "user", user.Username, "conn", client.ID())

	go h.writePump(client)
	h.readPump(client)
	return nil
}

// NotifyDeleted tells every editor of path that the file is gone, however
// each of them spelled the path.
func (h *Handler) NotifyDeleted(path string) {
	key, err := NormalizePath(path)
	if err != nil {
		return
	}
	hub := h.hubs.Get(key)
	if hub == nil {
		return
	}
	h.fanOut(hub, nil, func(alias string) *protocol.Frame {
		return protocol.ErrorFrame("File was deleted", alias, "")
	})
}

// Close disconnects every editor.
func (h *Handler) Close() {
	h.hubs.Close()
}

func (h *Handler) handleFrame(ctx context.Context, client *Client, frame *protocol.Frame) {
	switch frame.Type {
	case protocol.MessageTypeLoad:
		h.handleLoad(ctx, client, frame)
	case protocol.MessageTypeSave, protocol.MessageTypeAcceptCompletion:
		h.handleSave(ctx, client, frame)
	case protocol.MessageTypeCheckActive:
		h.handleCheckActive(client, frame)
	case protocol.MessageTypeCursorUpdate:
		h.handleCursor(client, frame)
	case protocol.MessageTypeRequestCompletion:
		h.handleCompletion(client, frame)
	}
}

func (h *Handler) handleLoad(ctx context.Context, client *Client, frame *protocol.Frame) {
	key, err := NormalizePath(frame.Path)
	if err == nil {
		var content string
		content, err = h.files.Read(key)
		if err == nil {
			h.join(ctx, client, key, frame.Path, content)
			return
		}
	}
	h.sendError(client, readError(err), frame.Path, string(frame.Type))
}

// join moves client onto the hub for key and sends it the file.
func (h *Handler) join(ctx context.Context, client *Client, key, alias, content string) {
	if prev := client.Path(); prev != "" && prev != key {
		h.leave(ctx, client)
	}
	client.setPath(key, alias, h.now())
	hub := h.hubs.Join(key, client)
	h.track(ctx, client)

	user := client.User()
	h.send(client, &protocol.Frame{
		Type:          protocol.MessageTypeLoad,
		Path:          alias,
		Content:       content,
		CurrentUserID: user.ID,
		Username:      user.Username,
		Color:         user.Color,
		ActiveEditors: h.activeEditors(hub, user.ID),
	})
	h.broadcast(hub, &protocol.Frame{Type: protocol.MessageTypeEditorJoined, User: &user}, client)
	h.log.Info("editor joined", "user", user.Username, "path", key, "editors", hub.ClientCount())
}

func (h *Handler) handleSave(ctx context.Context, client *Client, frame *protocol.Frame) {
	path := frame.Path
	if path == "" {
		path = client.Alias()
	}
	if path == "" {
		h.sendError(client, "No file loaded", "", string(frame.Type))
		return
	}
	key, err := NormalizePath(path)
	if err != nil {
		h.sendError(client, "Invalid path", path, string(frame.Type))
		return
	}

	if err := h.files.Write(key, frame.Content); err != nil {
		h.log.Warn("save failed", "path", path, "error", err)
		h.sendError(client, fmt.Sprintf("Failed to save file: %v", err), path, string(frame.Type))
		return
	}
	client.touch(h.now())
	h.track(ctx, client)

	h.send(client, &protocol.Frame{Type: protocol.MessageTypeSave, Status: "success", Path: path})

	hub := h.hubs.Get(key)
	if hub == nil {
		return
	}
	user := client.User()
	h.fanOut(hub, client, func(alias string) *protocol.Frame {
		return &protocol.Frame{
			Type:    protocol.MessageTypeContentUpdate,
			Path:    alias,
			Content: frame.Content,
			User:    &user,
		}
	})
	h.broadcastActiveEditors(hub)
}

func (h *Handler) handleCheckActive(client *Client, frame *protocol.Frame) {
	if !h.isLoaded(client, frame.Path) {
		return
	}
	path := client.Path()
	hub := h.hubs.Get(path)
	if hub == nil {
		return
	}
	reply := &protocol.Frame{
		Type:  protocol.MessageTypeActiveEditors,
		Path:  client.Alias(),
		Users: h.activeEditors(hub, client.User().ID),
	}
	if content, err := h.files.Read(path); err == nil {
		reply.Content = content
	}
	h.send(client, reply)
}

func (h *Handler) handleCursor(client *Client, frame *protocol.Frame) {
	if !h.isLoaded(client, frame.Path) {
		return
	}
	path := client.Path()
	now := h.now()
	if !client.moveCursor(frame.Position, now) {
		return
	}
	hub := h.hubs.Get(path)
	if hub == nil {
		return
	}
	user := client.User()
	h.fanOut(hub, client, func(alias string) *protocol.Frame {
		return &protocol.Frame{
			Type:      protocol.MessageTypeCursorUpdate,
			Path:      alias,
			User:      &user,
			Position:  frame.Position,
			Timestamp: unixSeconds(now),
		}
	})
}

// isLoaded reports whether path names the file client has loaded. An empty
// path means the loaded file.
func (h *Handler) isLoaded(client *Client, path string) bool {
	loaded := client.Path()
	if loaded == "" {
		return false
	}
	if path == "" {
		return true
	}
	key, err := NormalizePath(path)
	return err == nil && key == loaded
}

// handleCompletion runs the completer off the read loop so a slow backend
// does not stall the connection.
func (h *Handler) handleCompletion(client *Client, frame *protocol.Frame) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		completion, err := h.complete.Complete(ctx, frame.Content, frame.CursorPosition)
		if err != nil {
			h.log.Warn("completion failed", "user", client.User().Username, "error", err)
			h.sendError(client, fmt.Sprintf("Completion failed: %v", err), frame.Path, string(frame.Type))
			return
		}
		h.send(client, &protocol.Frame{
			Type:           protocol.MessageTypeCompletionSuggestion,
			Completion:     completion,
			CursorPosition: frame.CursorPosition,
		})
	}()
}

// leave removes client from its current file and tells the others.
func (h *Handler) leave(ctx context.Context, client *Client) {
	path := client.Path()
	if path == "" {
		return
	}
	user := client.User()
	hub := h.hubs.Leave(path, client)
	client.setPath("", "", h.now())

	if h.activity != nil {
		if err := h.activity.Remove(ctx, user.ID, path); err != nil {
			h.log.Warn("failed to clear activity", "user", user.Username, "path", path, "error", err)
		}
	}
	if hub == nil || hub.ClientCount() == 0 {
		return
	}
	h.broadcast(hub, &protocol.Frame{Type: protocol.MessageTypeEditorLeft, User: &user}, nil)
	h.broadcastActiveEditors(hub)
	h.log.Info("editor left", "user", user.Username, "path", path, "editors", hub.ClientCount())
}

func (h *Handler) track(ctx context.Context, client *Client) {
	if h.activity == nil {
		return
	}
	path := client.Path()
	_, at := client.presence()
	if err := h.activity.Track(ctx, client.User().ID, path, at); err != nil {
		h.log.Warn("failed to record activity", "path", path, "error", err)
	}
}

// activeEditors lists the recently active editors of hub other than viewer,
// most recent first. A user with several connections appears once.
func (h *Handler) activeEditors(hub *Hub, viewer model.UserID) []protocol.Editor {
	now := h.now()
	latest := make(map[model.UserID]protocol.Editor)
	for _, c := range hub.Clients() {
		user := c.User()
		if user.ID == viewer {
			continue
		}
		cursor, last := c.presence()
		if now.Sub(last) > h.idle {
			continue
		}
		editor := protocol.Editor{User: user, Cursor: &cursor, LastActive: unixSeconds(last)}
		if prev, ok := latest[user.ID]; ok && prev.LastActive >= editor.LastActive {
			continue
		}
		latest[user.ID] = editor
	}

	editors := make([]protocol.Editor, 0, len(latest))
	for _, e := range latest {
		editors = append(editors, e)
	}
	sort.Slice(editors, func(i, j int) bool {
		if editors[i].LastActive != editors[j].LastActive {
			return editors[i].LastActive > editors[j].LastActive
		}
		return editors[i].ID < editors[j].ID
	})
	return editors
}

func (h *Handler) broadcastActiveEditors(hub *Hub) {
	for _, c := range hub.Clients() {
		h.send(c, &protocol.Frame{
			Type:  protocol.MessageTypeActiveEditors,
			Path:  c.Alias(),
			Users: h.activeEditors(hub, c.User().ID),
		})
	}
}

// fanOut sends a frame built per recipient to every client of hub except
// exclude, addressed with the path spelling that client loaded.
func (h *Handler) fanOut(hub *Hub, exclude *Client, build func(alias string) *protocol.Frame) {
	for _, c := range hub.Clients() {
		if c != exclude {
			h.send(c, build(c.Alias()))
		}
	}
}

func (h *Handler) send(client *Client, frame *protocol.Frame) {
	data, err := protocol.Encode(frame, protocol.ServerToClient)
	if err != nil {
		h.log.Error("failed to encode frame", "type", frame.Type, "error", err)
		return
	}
	client.Send(data)
}

func (h *Handler) broadcast(hub *Hub, frame *protocol.Frame, exclude *Client) {
	data, err := protocol.Encode(frame, protocol.ServerToClient)
	if err != nil {
		h.log.Error("failed to encode frame", "type", frame.Type, "error", err)
		return
	}
	hub.Broadcast(data, exclude)
}

func (h *Handler) sendError(client *Client, message, path, op string) {
	h.send(client, protocol.ErrorFrame(message, path, op))
}

// readPump pumps frames from the connection to the handlers.
func (h *Handler) readPump(client *Client) {
	ctx := context.Background()
	defer func() {
		h.leave(ctx, client)
		client.Close()
		client.conn.Close()
		h.log.Info("editor disconnected", "user", client.User().Username, "conn", client.ID())
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket error", "error", err)
			}
			break
		}

		frame, err := protocol.Decode(message, protocol.ClientToServer)
		if err != nil {
			h.log.Warn("invalid frame", "user", client.User().Username, "error", err)
			h.sendError(client, err.Error(), "", "")
			continue
		}
		h.handleFrame(ctx, client, frame)
	}
}

// writePump pumps queued frames to the connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The client was closed
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readError maps a read failure to the message clients understand.
func readError(err error) string {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "File not found"
	case errors.Is(err, ErrInvalidPath):
		return "Invalid path"
	default:
		return fmt.Sprintf("Failed to read file: %v", err)
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
