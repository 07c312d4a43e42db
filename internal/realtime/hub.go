package realtime

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fusen-app/fusen/pkg/logger"
	"github.com/fusen-app/fusen/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB

	defaultBufferSize = 64

	resolveTimeout = 5 * time.Second
)

// Client events that mutate room membership.
const (
	EventJoinBoard   = "join-board"
	EventJoinedBoard = "joined-board"
	EventLeaveBoard  = "leave-board"
)

// Relayed mutation events. These fan out to every other member of the
// board room; the sending connection never hears its own echo.
const (
	EventTaskCreated    = "task-created"
	EventTaskUpdated    = "task-updated"
	EventTaskDeleted    = "task-deleted"
	EventTasksReordered = "tasks-reordered"
	EventBoardUpdated   = "board-updated"
)

// Roster events fan out to everyone in the room, sender included, so the
// initiating client refreshes its member list like everyone else.
const (
	EventMemberAdded   = "member-added"
	EventMemberRemoved = "member-removed"
)

// Message is the JSON envelope exchanged with realtime clients.
type Message struct {
	Event   string          `json:"event"`
	BoardID string          `json:"board_id,omitempty"`
	UserID  string          `json:"user_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// MembershipResolver answers whether a user currently belongs to a board.
// join-board re-checks on every attempt so revoked members cannot rejoin
// with a stale token.
type MembershipResolver interface {
	IsMember(ctx context.Context, userID, boardID string) bool
}

// Hub tracks one room per board and fans events out to the connections
// joined to it. Rooms live in memory only; clients rebuild them by
// re-joining after a reconnect.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*connection]struct{}
	resolver MembershipResolver
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs a hub backed by the supplied membership resolver.
func NewHub(resolver MembershipResolver) *Hub {
	return &Hub{
		rooms:    make(map[string]map[*connection]struct{}),
		resolver: resolver,
		log:      logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
	}
}

// Serve upgrades the HTTP connection to a WebSocket for an already
// authenticated user and runs the read loop until the peer goes away.
func (h *Hub) Serve(userID string, w http.ResponseWriter, r *http.Request) {
	var header http.Header
	// Echo the negotiated subprotocol when the client smuggled its bearer
	// token through Sec-WebSocket-Protocol.
	if proto := selectBearerProtocol(r); proto != "" {
		header = http.Header{"Sec-WebSocket-Protocol": []string{proto}}
	}

	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newConnection(h, conn, userID)
	metrics.RealtimeConnections.Inc()

	go client.writeLoop()
	client.readLoop()
}

// Broadcast delivers an event to a board room from outside a websocket
// session, e.g. after a server-side mutation. No connection is excluded.
func (h *Hub) Broadcast(boardID, event, userID string, data json.RawMessage) {
	h.fanOut(boardID, Message{Event: event, BoardID: boardID, UserID: userID, Data: data}, nil)
}

func (h *Hub) fanOut(boardID string, message Message, exclude *connection) {
	if boardID == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[boardID]
	if !ok {
		return
	}

	metrics.RealtimeEvents.WithLabelValues(message.Event).Inc()
	for client := range room {
		if client == exclude {
			continue
		}
		h.enqueue(client, message)
	}
}

func (h *Hub) join(client *connection, boardID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	if !h.resolver.IsMember(ctx, client.userID, boardID) {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[boardID] == nil {
		h.rooms[boardID] = make(map[*connection]struct{})
	}
	h.rooms[boardID][client] = struct{}{}
	client.boards[boardID] = struct{}{}
	return true
}

func (h *Hub) leave(client *connection, boardID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, boardID)
}

func (h *Hub) leaveLocked(client *connection, boardID string) {
	room, ok := h.rooms[boardID]
	if !ok {
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, boardID)
	}
	delete(client.boards, boardID)
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for boardID := range client.boards {
		h.leaveLocked(client, boardID)
	}
}

func (h *Hub) enqueue(client *connection, message Message) {
	select {
	case <-client.done:
	case client.send <- message:
	default:
		h.log.Warn("dropping backpressure client", zap.String("user_id", client.userID))
		// enqueue runs under the room lock; close re-acquires it in
		// unregister, so it must happen on another goroutine.
		go client.close()
	}
}

func (h *Hub) joined(client *connection, boardID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := client.boards[boardID]
	return ok
}

// RoomSize reports how many connections are currently joined to a board.
func (h *Hub) RoomSize(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[boardID])
}

type connection struct {
	hub    *Hub
	socket *websocket.Conn
	userID string
	boards map[string]struct{}
	send   chan Message
	done   chan struct{}
	once   sync.Once
}

func newConnection(hub *Hub, conn *websocket.Conn, userID string) *connection {
	return &connection{
		hub:    hub,
		socket: conn,
		userID: userID,
		boards: make(map[string]struct{}),
		send:   make(chan Message, defaultBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("user_id", c.userID), zap.Error(err))
			}
			break
		}

		if len(payload) == 0 {
			continue
		}

		var inbound Message
		if err := json.Unmarshal(payload, &inbound); err != nil {
			c.sendError(inbound.BoardID, "invalid message payload")
			continue
		}

		c.dispatch(inbound)
	}
}

func (c *connection) dispatch(inbound Message) {
	event := strings.TrimSpace(inbound.Event)
	boardID := strings.TrimSpace(inbound.BoardID)

	switch event {
	case EventJoinBoard:
		if boardID == "" {
			c.sendError(boardID, "board_id is required")
			return
		}
		if !c.hub.join(c, boardID) {
			c.sendError(boardID, "not a member of this board")
			return
		}
		c.hub.enqueue(c, Message{Event: EventJoinedBoard, BoardID: boardID, UserID: c.userID})
	case EventLeaveBoard:
		if boardID != "" {
			c.hub.leave(c, boardID)
		}
	case EventTaskCreated, EventTaskUpdated, EventTaskDeleted, EventTasksReordered, EventBoardUpdated:
		c.relay(boardID, event, inbound.Data, c)
	case EventMemberAdded, EventMemberRemoved:
		c.relay(boardID, event, inbound.Data, nil)
	default:
		c.sendError(boardID, "unsupported event")
	}
}

// relay forwards an event to the board room, but only when the sender has
// actually joined it.
func (c *connection) relay(boardID, event string, data json.RawMessage, exclude *connection) {
	if boardID == "" {
		c.sendError(boardID, "board_id is required")
		return
	}
	if !c.hub.joined(c, boardID) {
		c.sendError(boardID, "join the board before publishing events")
		return
	}

	c.hub.fanOut(boardID, Message{
		Event:   event,
		BoardID: boardID,
		UserID:  c.userID,
		Data:    data,
	}, exclude)
}

func (c *connection) sendError(boardID, reason string) {
	data, _ := json.Marshal(map[string]string{"message": reason})
	c.hub.enqueue(c, Message{Event: "error", BoardID: boardID, Data: data})
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		metrics.RealtimeConnections.Dec()
		close(c.done)
		_ = c.socket.Close()
	})
}

// selectBearerProtocol returns the "bearer.<token>" subprotocol offered by
// the client, so the upgrade response can accept it.
func selectBearerProtocol(r *http.Request) string {
	for _, field := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, proto := range strings.Split(field, ",") {
			proto = strings.TrimSpace(proto)
			if strings.HasPrefix(proto, "bearer.") {
				return proto
			}
		}
	}
	return ""
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
