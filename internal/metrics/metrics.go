package metrics

import "sync"

// Event counter names. Names are intentionally simple; they surface through
// the /metrics endpoint as label values.
const (
	ConnectionOpened = "connection_opened"
	ConnectionClosed = "connection_closed"

	RoomCreated = "room_created"
	RoomDeleted = "room_deleted"
	UserJoined  = "user_joined"
	UserLeft    = "user_left"

	RelayedOffer     = "relayed_offer"
	RelayedAnswer    = "relayed_answer"
	RelayedCandidate = "relayed_candidate"

	DropBadMessage    = "drop_bad_message"
	DropRateLimited   = "drop_rate_limited"
	DropSendQueueFull = "drop_send_queue_full"
)

// Metrics is a minimal, concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
