// Package internal holds process-level wiring: configuration and the
// logger builder.
package internal

import (
	"time"
)

// Config is loaded from the environment. Every heuristic knob of the
// engine lives here; call sites never hardcode tuning values.
type Config struct {
	Host       string `env:"HOST,default=0.0.0.0"`
	Port       int    `env:"PORT,default=8080"`
	InstanceID string `env:"INSTANCE_ID,default=engagement-1"`
	LogLevel   string `env:"LOG_LEVEL,default=INFO"`

	JWTSecret string `env:"JWT_SECRET,required=true"`
	JWTIssuer string `env:"JWT_ISSUER,default=bumpfeed"`

	DirectoryBaseURL string        `env:"DIRECTORY_BASE_URL,required=true"`
	DirectoryTimeout time.Duration `env:"DIRECTORY_TIMEOUT,default=3s"`

	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	ActivityRetention time.Duration `env:"ACTIVITY_RETENTION,default=168h"`

	EventBufferSize      int           `env:"EVENT_BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=5s"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	CleanupInterval   time.Duration `env:"CLEANUP_INTERVAL,default=5m"`
	StaleTimeout      time.Duration `env:"STALE_TIMEOUT,default=2m"`
	TypingWindow      time.Duration `env:"TYPING_WINDOW,default=30s"`
	DedupWindow       time.Duration `env:"DEDUP_WINDOW,default=5m"`

	WarmthCacheTTL   time.Duration `env:"WARMTH_CACHE_TTL,default=1h"`
	WarmthWindow     time.Duration `env:"WARMTH_WINDOW,default=168h"`
	ShutdownDeadline time.Duration `env:"SHUTDOWN_DEADLINE,default=10s"`
}
