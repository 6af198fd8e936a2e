// Package config loads the signaling server configuration from environment
// variables and command-line flags. Environment values become flag defaults,
// so flags always win when both are set.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Nisarg284/cozy-discussions-hub/internal/origin"
)

const (
	// PORT is kept for parity with the original deployment; it only carries a
	// port number and binds all interfaces.
	envVarPort           = "PORT"
	envVarListenAddr     = "SIGNALING_LISTEN_ADDR"
	envVarAllowedOrigins = "ALLOWED_ORIGINS"
	envVarMode           = "SIGNALING_MODE"
	envVarLogFormat      = "SIGNALING_LOG_FORMAT"
	envVarLogLevel       = "SIGNALING_LOG_LEVEL"

	envVarShutdownTimeout = "SIGNALING_SHUTDOWN_TIMEOUT"
	envVarPingInterval    = "SIGNALING_PING_INTERVAL"
	envVarPongWait        = "SIGNALING_PONG_WAIT"
	envVarWriteWait       = "SIGNALING_WRITE_WAIT"

	envVarMaxMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSendQueueSize        = "SIGNALING_SEND_QUEUE_SIZE"
)

const (
	DefaultListenAddr      = ":3001"
	DefaultShutdownTimeout = 15 * time.Second

	// Heartbeat defaults mirror the original deployment's pingInterval and
	// pingTimeout. The ping interval must stay below the pong wait or every
	// connection would idle out between pings.
	DefaultPingInterval = 25 * time.Second
	DefaultPongWait     = 60 * time.Second
	DefaultWriteWait    = 10 * time.Second

	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultMaxMessagesPerSecond = 50
	DefaultSendQueueSize        = 256

	DefaultMode Mode = ModeDev
)

// DefaultAllowedOrigins is the fixed development allow-list the frontend is
// served from.
var DefaultAllowedOrigins = []string{
	"http://localhost:5173",
	"http://localhost:8080",
	"http://127.0.0.1:8080",
	"http://127.0.0.1:5173",
}

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr     string
	AllowedOrigins []string
	Mode           Mode
	LogFormat      LogFormat
	LogLevel       slog.Level

	ShutdownTimeout time.Duration

	// PingInterval and PongWait drive the WebSocket heartbeat: the server
	// pings every PingInterval and drops connections that produce no traffic
	// (including pongs) for PongWait.
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueueSize        int

	// ICEServers is handed to browser clients via GET /ice so they can build
	// their RTCPeerConnection configuration.
	ICEServers []webrtc.ICEServer
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, "")
	if listenAddr == "" {
		if port, ok := lookup(envVarPort); ok && strings.TrimSpace(port) != "" {
			p, err := strconv.ParseUint(strings.TrimSpace(port), 10, 16)
			if err != nil || p == 0 {
				return Config{}, fmt.Errorf("invalid %s %q", envVarPort, port)
			}
			listenAddr = ":" + strconv.FormatUint(p, 10)
		} else {
			listenAddr = DefaultListenAddr
		}
	}

	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, strings.Join(DefaultAllowedOrigins, ","))
	iceServersJSON := envOrDefault(lookup, envVarICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envVarStunURLs, "")
	turnURLs := envOrDefault(lookup, envVarTurnURLs, "")
	turnUsername := envOrDefault(lookup, envVarTurnUsername, "")
	turnCredential := envOrDefault(lookup, envVarTurnCredential, "")

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := envDurationOrDefault(lookup, envVarPingInterval, DefaultPingInterval)
	if err != nil {
		return Config{}, err
	}
	pongWait, err := envDurationOrDefault(lookup, envVarPongWait, DefaultPongWait)
	if err != nil {
		return Config{}, err
	}
	writeWait, err := envDurationOrDefault(lookup, envVarWriteWait, DefaultWriteWait)
	if err != nil {
		return Config{}, err
	}

	maxMessageBytes := DefaultMaxMessageBytes
	if raw, ok := lookup(envVarMaxMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxMessageBytes, raw, err)
		}
		maxMessageBytes = n
	}

	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxMessagesPerSecond, DefaultMaxMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	sendQueueSize, err := envIntOrDefault(lookup, envVarSendQueueSize, DefaultSendQueueSize)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("signaling-server", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port; env "+envVarListenAddr+" or "+envVarPort+")")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (env "+envVarShutdownTimeout+")")
	fs.DurationVar(&pingInterval, "ping-interval", pingInterval, "WebSocket ping interval (must be < --pong-wait; env "+envVarPingInterval+")")
	fs.DurationVar(&pongWait, "pong-wait", pongWait, "Drop connections with no traffic for this duration (env "+envVarPongWait+")")
	fs.DurationVar(&writeWait, "write-wait", writeWait, "Per-frame WebSocket write deadline (env "+envVarWriteWait+")")
	fs.Int64Var(&maxMessageBytes, "max-message-bytes", maxMessageBytes, "Max inbound signaling message size in bytes (env "+envVarMaxMessageBytes+")")
	fs.IntVar(&maxMessagesPerSecond, "max-messages-per-second", maxMessagesPerSecond, "Max inbound signaling messages per second per connection (env "+envVarMaxMessagesPerSecond+")")
	fs.IntVar(&sendQueueSize, "send-queue-size", sendQueueSize, "Outbound frame queue size per connection (env "+envVarSendQueueSize+")")
	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config (env "+envVarICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "Comma-separated STUN URLs (env "+envVarStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "Comma-separated TURN URLs (env "+envVarTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username (env "+envVarTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential (env "+envVarTurnCredential+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})
	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins, ok := origin.NormalizeList(splitCommaSeparated(allowedOriginsStr))
	if !ok {
		return Config{}, fmt.Errorf("invalid %s/--allowed-origins %q", envVarAllowedOrigins, allowedOriginsStr)
	}

	iceServers, err := parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential)
	if err != nil {
		return Config{}, err
	}

	if listenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--shutdown-timeout must be > 0", envVarShutdownTimeout)
	}
	if pingInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--ping-interval must be > 0", envVarPingInterval)
	}
	if pongWait <= 0 {
		return Config{}, fmt.Errorf("%s/--pong-wait must be > 0", envVarPongWait)
	}
	if pingInterval >= pongWait {
		return Config{}, fmt.Errorf("%s/--ping-interval must be < %s/--pong-wait", envVarPingInterval, envVarPongWait)
	}
	if writeWait <= 0 {
		return Config{}, fmt.Errorf("%s/--write-wait must be > 0", envVarWriteWait)
	}
	if maxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-message-bytes must be > 0", envVarMaxMessageBytes)
	}
	if maxMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s/--max-messages-per-second must be > 0", envVarMaxMessagesPerSecond)
	}
	if sendQueueSize <= 0 {
		return Config{}, fmt.Errorf("%s/--send-queue-size must be > 0", envVarSendQueueSize)
	}

	return Config{
		ListenAddr:     listenAddr,
		AllowedOrigins: allowedOrigins,
		Mode:           mode,
		LogFormat:      logFormat,
		LogLevel:       level,

		ShutdownTimeout: shutdownTimeout,
		PingInterval:    pingInterval,
		PongWait:        pongWait,
		WriteWait:       writeWait,

		MaxMessageBytes:      maxMessageBytes,
		MaxMessagesPerSecond: maxMessagesPerSecond,
		SendQueueSize:        sendQueueSize,

		ICEServers: iceServers,
	}, nil
}

// NewLogger builds the process-wide slog logger from the configured format
// and level.
func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func parseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeDev:
		return ModeDev, nil
	case ModeProd:
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (want dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch LogFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case LogFormatText:
		return LogFormatText, nil
	case LogFormatJSON:
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (want text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (want debug, info, warn, or error)", raw)
	}
}

func defaultLogFormatForMode(mode string) string {
	if Mode(mode) == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode string) string {
	if Mode(mode) == ModeProd {
		return "info"
	}
	return "debug"
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitCommaSeparated(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
