package signaling

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Nisarg284/cozy-discussions-hub/internal/metrics"
)

// command is one inbound client message awaiting hub processing.
type command struct {
	client *Client
	msg    *ClientMessage
}

// Participant is one room member as seen in a registry snapshot.
type Participant struct {
	ID   string
	Name string
}

type roomQuery struct {
	reply chan map[string][]Participant
}

// room is a named relay scope. Members are keyed by connection id.
type room struct {
	members map[string]*Client
}

// Hub owns the room registry. All mutations (join, leave, relay fan-out,
// disconnect cleanup) happen on the single goroutine running Run, which is
// what makes the registry invariants hold without locks:
//
//   - a room exists iff it has at least one member
//   - a connection is a member of at most one room
//   - disconnect cleanup runs exactly once per connection
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	register   chan *Client
	unregister chan *Client
	inbound    chan command
	queries    chan roomQuery

	rooms   map[string]*room
	clients map[*Client]struct{}
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Hub{
		log:     logger,
		metrics: m,

		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan command),
		queries:    make(chan roomQuery),

		rooms:   make(map[string]*room),
		clients: make(map[*Client]struct{}),
	}
}

// Run processes hub events until ctx is cancelled. It must run in exactly
// one goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.Inc(metrics.ConnectionOpened)
			h.log.Info("client connected", "conn_id", c.id)

		case c := <-h.unregister:
			// The clients set guards against a second unregister for the same
			// connection; cleanup must not run twice.
			if _, ok := h.clients[c]; !ok {
				continue
			}
			delete(h.clients, c)
			h.leaveCurrentRoom(c)
			close(c.send)
			h.metrics.Inc(metrics.ConnectionClosed)
			h.log.Info("client disconnected", "conn_id", c.id)

		case cmd := <-h.inbound:
			h.handle(cmd.client, cmd.msg)

		case q := <-h.queries:
			q.reply <- h.snapshot()
		}
	}
}

// Rooms returns a point-in-time copy of the registry. The call synchronizes
// with the hub goroutine, so it observes no half-applied operation.
func (h *Hub) Rooms() map[string][]Participant {
	q := roomQuery{reply: make(chan map[string][]Participant, 1)}
	h.queries <- q
	return <-q.reply
}

func (h *Hub) handle(c *Client, msg *ClientMessage) {
	switch msg.Type {
	case TypeJoinRoom:
		h.join(c, msg.RoomID, msg.Name)
	case TypeLeaveRoom:
		h.leave(c, msg.RoomID)
	case TypeOffer, TypeAnswer, TypeICECandidate:
		h.relay(c, msg)
	}
}

func (h *Hub) join(c *Client, roomID, name string) {
	// A connection is never a member of two rooms: switching rooms runs the
	// same cleanup path as an explicit leave, including the user-left
	// notification to the old room.
	if c.roomID != "" && c.roomID != roomID {
		h.leaveCurrentRoom(c)
	}

	r := h.rooms[roomID]
	if r == nil {
		r = &room{members: make(map[string]*Client)}
		h.rooms[roomID] = r
		h.metrics.Inc(metrics.RoomCreated)
		h.log.Info("room created", "room_id", roomID)
	}

	c.name = name
	c.roomID = roomID
	r.members[c.id] = c

	// Existing members learn about the newcomer; the joiner gets nothing.
	h.broadcast(r, c, marshalEvent(presenceEvent{Type: TypeUserJoined, ID: c.id, Name: name}))
	h.metrics.Inc(metrics.UserJoined)
	h.log.Info("user joined room", "room_id", roomID, "conn_id", c.id, "name", name, "members", len(r.members))
}

func (h *Hub) leave(c *Client, roomID string) {
	// Leaving a room the connection is not recorded in is a no-op.
	if c.roomID != roomID {
		return
	}
	h.leaveCurrentRoom(c)
}

// leaveCurrentRoom removes c from its current room, deleting the room when it
// empties and notifying the remaining members otherwise. Safe to call when c
// is not in a room.
func (h *Hub) leaveCurrentRoom(c *Client) {
	if c.roomID == "" {
		return
	}
	roomID := c.roomID
	c.roomID = ""

	r := h.rooms[roomID]
	if r == nil {
		return
	}
	delete(r.members, c.id)

	if len(r.members) == 0 {
		// No one left to notify.
		delete(h.rooms, roomID)
		h.metrics.Inc(metrics.RoomDeleted)
		h.log.Info("room deleted", "room_id", roomID)
		return
	}

	h.broadcast(r, nil, marshalEvent(presenceEvent{Type: TypeUserLeft, ID: c.id, Name: c.name}))
	h.metrics.Inc(metrics.UserLeft)
	h.log.Info("user left room", "room_id", roomID, "conn_id", c.id, "name", c.name, "members", len(r.members))
}

func (h *Hub) relay(c *Client, msg *ClientMessage) {
	// Relay scope is the caller-supplied room id, not the recorded
	// membership. A room with no other members means the counterpart has not
	// connected yet; the message is silently dropped.
	r := h.rooms[msg.RoomID]
	if r == nil {
		h.log.Debug("relay to unknown room dropped", "room_id", msg.RoomID, "conn_id", c.id, "type", msg.Type)
		return
	}

	ev := relayEvent{Type: msg.Type, RoomID: msg.RoomID, From: c.id}
	switch msg.Type {
	case TypeOffer:
		ev.Offer = msg.Offer
		h.metrics.Inc(metrics.RelayedOffer)
	case TypeAnswer:
		ev.Answer = msg.Answer
		h.metrics.Inc(metrics.RelayedAnswer)
	case TypeICECandidate:
		ev.Candidate = msg.Candidate
		h.metrics.Inc(metrics.RelayedCandidate)
	}

	h.broadcast(r, c, marshalEvent(ev))
	h.log.Debug("relayed message", "room_id", msg.RoomID, "type", msg.Type, "from", c.id)
}

// broadcast enqueues frame for every room member except exclude. A slow
// recipient with a full queue is skipped so it cannot stall the others.
func (h *Hub) broadcast(r *room, exclude *Client, frame []byte) {
	for _, member := range r.members {
		if member == exclude {
			continue
		}
		if !member.enqueue(frame) {
			h.metrics.Inc(metrics.DropSendQueueFull)
			h.log.Warn("send queue full, dropping frame", "conn_id", member.id)
		}
	}
}

func (h *Hub) snapshot() map[string][]Participant {
	out := make(map[string][]Participant, len(h.rooms))
	for id, r := range h.rooms {
		members := make([]Participant, 0, len(r.members))
		for _, m := range r.members {
			members = append(members, Participant{ID: m.id, Name: m.name})
		}
		out[id] = members
	}
	return out
}

func marshalEvent(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
