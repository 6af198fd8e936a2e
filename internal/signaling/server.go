package signaling

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Nisarg284/cozy-discussions-hub/internal/origin"
	"github.com/Nisarg284/cozy-discussions-hub/internal/ratelimit"
)

// Config carries the per-connection tuning for the WebSocket endpoint.
type Config struct {
	// AllowedOrigins is the normalized origin allow-list checked during the
	// upgrade handshake. "*" allows any origin.
	AllowedOrigins []string

	// PingInterval is how often the server pings an idle connection. It must
	// be shorter than PongWait.
	PingInterval time.Duration

	// PongWait is how long a connection may go without traffic or a pong
	// before it is considered dead.
	PongWait time.Duration

	// WriteWait bounds each outbound write.
	WriteWait time.Duration

	// MaxMessageBytes caps a single inbound message.
	MaxMessageBytes int64

	// MaxMessagesPerSecond caps the sustained inbound message rate per
	// connection. Zero disables rate limiting.
	MaxMessagesPerSecond int64

	// SendQueueSize is the outbound frame queue depth per connection.
	SendQueueSize int
}

// Server upgrades HTTP requests to WebSocket connections and attaches them to
// the hub.
type Server struct {
	hub      *Hub
	log      *slog.Logger
	cfg      Config
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{hub: hub, log: logger, cfg: cfg}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin enforces the allow-list during the upgrade handshake. Requests
// without an Origin header are allowed: only browsers send one.
func (s *Server) checkOrigin(r *http.Request) bool {
	originHeader := strings.TrimSpace(r.Header.Get("Origin"))
	if originHeader == "" {
		return true
	}
	normalized, ok := origin.Normalize(originHeader)
	if !ok {
		return false
	}
	return origin.Allowed(normalized, s.cfg.AllowedOrigins)
}

// ServeHTTP handles a WebSocket upgrade request. On success the connection is
// registered with the hub and its pumps are started; the HTTP handler returns
// immediately while the pumps run for the connection's lifetime.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.log.Warn("websocket upgrade rejected", "remote", r.RemoteAddr, "err", err)
		return
	}

	var limiter *ratelimit.TokenBucket
	if s.cfg.MaxMessagesPerSecond > 0 {
		limiter = ratelimit.NewTokenBucket(ratelimit.RealClock{}, s.cfg.MaxMessagesPerSecond, s.cfg.MaxMessagesPerSecond)
	}

	c := &Client{
		hub:             s.hub,
		conn:            conn,
		log:             s.log,
		id:              uuid.NewString(),
		limiter:         limiter,
		send:            make(chan []byte, s.cfg.SendQueueSize),
		pongWait:        s.cfg.PongWait,
		pingInterval:    s.cfg.PingInterval,
		writeWait:       s.cfg.WriteWait,
		maxMessageBytes: s.cfg.MaxMessageBytes,
	}

	s.hub.register <- c
	go c.writePump()
	go c.readPump()
}
