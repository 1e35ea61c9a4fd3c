// Package hub fans room events out to websocket subscribers and dispatches
// inbound client commands to the coordinator. The hub owns only transport
// state; the registries stay the source of truth, so a slow observer that
// misses a delta converges on the next snapshot.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gameshowlab/podium/internal/events"
	"github.com/gameshowlab/podium/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Handler defines what the hub needs from the coordination layer.
type Handler interface {
	Connected(connID string)
	Disconnected(ctx context.Context, connID string)
	SubscribeAdmin(ctx context.Context, connID, code string)
	SubscribeSeat(ctx context.Context, connID, code string, seat session.SeatID, name, token string)
	Buzz(ctx context.Context, connID, code string, seat session.SeatID, name, token string)
	AdminUnlock(ctx context.Context, code string)
	RequestSnapshot(ctx context.Context, connID, code string)
}

// Config holds websocket transport settings.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the standard transport settings.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// outbound is one fan-out unit. Exactly one of room, connID, or all is set.
type outbound struct {
	room   string
	connID string
	all    bool
	data   []byte
}

// Hub manages websocket connections grouped into per-session rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]bool
	conns map[string]*Conn

	upgrader websocket.Upgrader
	config   Config
	handler  Handler

	sendCh chan outbound
}

// New returns a hub. SetHandler must be called before serving connections.
func New(config Config) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Conn]bool),
		conns: make(map[string]*Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		sendCh: make(chan outbound, 1024),
	}
}

// SetHandler wires the coordination layer in. Separate from New because the
// coordinator needs the hub as its broadcaster first.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// Start processes fan-out messages until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("hub shutting down")
			return
		case msg := <-h.sendCh:
			h.deliver(msg)
		}
	}
}

// Broadcast queues ev for every subscriber of code's room.
func (h *Hub) Broadcast(code string, ev events.Event) {
	h.enqueue(outbound{room: code, data: marshalEvent(ev)})
}

// BroadcastAll queues ev for every open connection.
func (h *Hub) BroadcastAll(ev events.Event) {
	h.enqueue(outbound{all: true, data: marshalEvent(ev)})
}

// SendTo queues ev for one connection.
func (h *Hub) SendTo(connID string, ev events.Event) {
	h.enqueue(outbound{connID: connID, data: marshalEvent(ev)})
}

// JoinRoom subscribes the connection to code's room, leaving any previous
// room first. A connection belongs to at most one room.
func (h *Hub) JoinRoom(connID, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return
	}
	h.leaveRoomLocked(conn)
	if h.rooms[code] == nil {
		h.rooms[code] = make(map[*Conn]bool)
	}
	h.rooms[code][conn] = true
	conn.room = code
}

func (h *Hub) leaveRoomLocked(conn *Conn) {
	if conn.room == "" {
		return
	}
	if members, ok := h.rooms[conn.room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.rooms, conn.room)
		}
	}
	conn.room = ""
}

func marshalEvent(ev events.Event) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", string(ev.Type)).Msg("failed to marshal event")
		return nil
	}
	return data
}

func (h *Hub) enqueue(msg outbound) {
	if msg.data == nil {
		return
	}
	select {
	case h.sendCh <- msg:
	default:
		log.Warn().Msg("hub send channel full, dropping message")
	}
}

// deliver resolves targets under a read lock, then writes without it.
func (h *Hub) deliver(msg outbound) {
	h.mu.RLock()
	var targets []*Conn
	switch {
	case msg.all:
		for _, conn := range h.conns {
			targets = append(targets, conn)
		}
	case msg.connID != "":
		if conn, ok := h.conns[msg.connID]; ok {
			targets = append(targets, conn)
		}
	default:
		for conn := range h.rooms[msg.room] {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.send <- msg.data:
		default:
			// Slow or dead consumer; drop it rather than stall the room.
			log.Warn().Str("connection_id", conn.ID).Msg("send buffer full, closing connection")
			h.remove(conn)
			conn.ws.Close()
		}
	}
}

// remove unregisters the connection and tells the coordinator it is gone.
func (h *Hub) remove(conn *Conn) {
	h.mu.Lock()
	_, registered := h.conns[conn.ID]
	if registered {
		delete(h.conns, conn.ID)
		h.leaveRoomLocked(conn)
	}
	h.mu.Unlock()

	if registered && h.handler != nil {
		h.handler.Disconnected(context.Background(), conn.ID)
	}
}

// HandleWS upgrades an HTTP request to a websocket connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := &Conn{
		ID:   uuid.New().String(),
		hub:  h,
		ws:   ws,
		send: make(chan []byte, 256),
	}

	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()

	if h.handler != nil {
		h.handler.Connected(conn.ID)
	}

	go conn.writePump()
	go conn.readPump()

	log.Info().Str("connection_id", conn.ID).Msg("websocket connection established")
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Hub) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWS)
}
