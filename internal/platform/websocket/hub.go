// Package websocket provides the real-time side of referral coordination: a
// registry of live connections and their room memberships, a router that fans
// domain events out to rooms, and the gorilla/websocket transport that feeds
// both.
package websocket

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// DefaultSendBuffer is the per-connection outbound queue bound.
const DefaultSendBuffer = 256

var (
	ErrUnknownConnection   = errors.New("websocket: unknown connection")
	ErrDuplicateConnection = errors.New("websocket: connection id already registered")
)

type sendResult int

const (
	sendOK sendResult = iota
	sendFull
	sendClosed
)

// Client is one live connection. Its outbound queue is bounded; a client that
// lets it fill up is evicted by the Hub.
type Client struct {
	ID string

	send chan []byte

	// roomsMu guards rooms and left. Lock order: roomsMu, then room.mu,
	// then sendMu.
	roomsMu sync.Mutex
	rooms   map[RoomID]struct{}
	left    bool

	sendMu sync.RWMutex
	closed bool
}

// Outbound yields queued payloads. It is closed once the client has left the
// hub.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

func (c *Client) enqueue(payload []byte) sendResult {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return sendClosed
	}
	select {
	case c.send <- payload:
		return sendOK
	default:
		return sendFull
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

type room struct {
	mu      sync.Mutex
	members map[string]*Client
	dead    bool
}

// Hub is the connection registry. Connections and rooms live in sync.Maps and
// each room carries its own lock, so joins and leaves on different rooms never
// contend and there is no registry-wide lock.
type Hub struct {
	clients    sync.Map // connection id -> *Client
	rooms      sync.Map // RoomID -> *room
	count      atomic.Int64
	sendBuffer int
	logger     zerolog.Logger
}

// NewHub creates a Hub whose connections queue at most sendBuffer payloads.
func NewHub(sendBuffer int, logger zerolog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Hub{sendBuffer: sendBuffer, logger: logger}
}

// Connect registers a new connection and places it in the global room. An
// empty id gets a generated one.
func (h *Hub) Connect(id string) (*Client, error) {
	if id == "" {
		id = uuid.New().String()
	}
	c := &Client{
		ID:    id,
		send:  make(chan []byte, h.sendBuffer),
		rooms: map[RoomID]struct{}{GlobalRoom: {}},
	}
	if _, loaded := h.clients.LoadOrStore(id, c); loaded {
		return nil, ErrDuplicateConnection
	}
	h.count.Add(1)
	h.addMember(GlobalRoom, c)
	return c, nil
}

func (h *Hub) client(id string) (*Client, bool) {
	v, ok := h.clients.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Client), true
}

// Join adds the connection to r. Joining a room twice is a no-op.
func (h *Hub) Join(connID string, r RoomID) error {
	c, ok := h.client(connID)
	if !ok {
		return ErrUnknownConnection
	}

	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	if c.left {
		return ErrUnknownConnection
	}
	if _, already := c.rooms[r]; already {
		return nil
	}
	h.addMember(r, c)
	c.rooms[r] = struct{}{}
	return nil
}

// Leave removes the connection from r. Membership of the global room is
// implicit for every live connection, so leaving it does nothing.
func (h *Hub) Leave(connID string, r RoomID) error {
	if r == GlobalRoom {
		return nil
	}
	c, ok := h.client(connID)
	if !ok {
		return ErrUnknownConnection
	}

	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	if _, member := c.rooms[r]; !member {
		return nil
	}
	delete(c.rooms, r)
	h.removeMember(r, c)
	return nil
}

// LeaveAll removes the connection from every room, unregisters it and closes
// its outbound queue. It reports whether this call did the cleanup; repeated
// calls for the same connection return false.
func (h *Hub) LeaveAll(connID string) bool {
	c, ok := h.client(connID)
	if !ok {
		return false
	}

	c.roomsMu.Lock()
	if c.left {
		c.roomsMu.Unlock()
		return false
	}
	c.left = true
	for r := range c.rooms {
		h.removeMember(r, c)
	}
	c.rooms = nil
	c.roomsMu.Unlock()

	h.clients.CompareAndDelete(connID, c)
	h.count.Add(-1)
	c.closeSend()
	return true
}

// MembersOf returns the ids of the connections currently in r.
func (h *Hub) MembersOf(r RoomID) []string {
	v, ok := h.rooms.Load(r)
	if !ok {
		return nil
	}
	rm := v.(*room)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return lo.Keys(rm.members)
}

// Send queues payload for one connection. Sending to a connection that is
// gone is a no-op; a connection whose queue is full is evicted.
func (h *Hub) Send(connID string, payload []byte) bool {
	c, ok := h.client(connID)
	if !ok {
		return false
	}
	switch c.enqueue(payload) {
	case sendOK:
		return true
	case sendFull:
		h.evict(c)
	}
	return false
}

// broadcast queues payload for every member of r and returns how many
// connections accepted it. The room lock is held for the whole pass so all
// members observe the room's events in the same order.
func (h *Hub) broadcast(r RoomID, payload []byte) int {
	v, ok := h.rooms.Load(r)
	if !ok {
		return 0
	}
	rm := v.(*room)

	var slow []*Client
	delivered := 0
	rm.mu.Lock()
	for _, c := range rm.members {
		switch c.enqueue(payload) {
		case sendOK:
			delivered++
		case sendFull:
			slow = append(slow, c)
		}
	}
	rm.mu.Unlock()

	for _, c := range slow {
		h.evict(c)
	}
	return delivered
}

func (h *Hub) evict(c *Client) {
	if h.LeaveAll(c.ID) {
		h.logger.Warn().Str("connection_id", c.ID).Int("buffer", h.sendBuffer).Msg("outbound queue full, connection dropped")
	}
}

func (h *Hub) addMember(r RoomID, c *Client) {
	for {
		v, _ := h.rooms.LoadOrStore(r, &room{members: make(map[string]*Client)})
		rm := v.(*room)
		rm.mu.Lock()
		if rm.dead {
			// Lost a race with the last member leaving; retry on a fresh room.
			rm.mu.Unlock()
			continue
		}
		rm.members[c.ID] = c
		rm.mu.Unlock()
		return
	}
}

func (h *Hub) removeMember(r RoomID, c *Client) {
	v, ok := h.rooms.Load(r)
	if !ok {
		return
	}
	rm := v.(*room)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.members, c.ID)
	if len(rm.members) == 0 && !rm.dead {
		rm.dead = true
		h.rooms.CompareAndDelete(r, rm)
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// RoomCount returns the number of connections in r.
func (h *Hub) RoomCount(r RoomID) int {
	v, ok := h.rooms.Load(r)
	if !ok {
		return 0
	}
	rm := v.(*room)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

// RoomStat is one row of Stats.
type RoomStat struct {
	Room    RoomID `json:"room"`
	Members int    `json:"members"`
}

// Stats snapshots the member count of every non-empty room.
func (h *Hub) Stats() []RoomStat {
	var out []RoomStat
	h.rooms.Range(func(k, v any) bool {
		rm := v.(*room)
		rm.mu.Lock()
		n := len(rm.members)
		rm.mu.Unlock()
		if n > 0 {
			out = append(out, RoomStat{Room: k.(RoomID), Members: n})
		}
		return true
	})
	return out
}
