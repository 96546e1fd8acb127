package configs

import (
	"fmt"
	"time"

	"github.com/hilthontt/ghostline/internal/infrastructure/env"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	HTTP         HTTPConfig         `koanf:"http"`
	RateLimiter  RateLimiterConfig  `koanf:"rateLimiter"`
	MessageStore MessageStoreConfig `koanf:"message_store"`
	RoomStore    RoomStoreConfig    `koanf:"room_store"`
	WebSocket    WebSocketConfig    `koanf:"websocket"`
	Logger       LoggerConfig       `koanf:"logger"`
	Tracing      TracingConfig      `koanf:"tracing"`
}

type HTTPConfig struct {
	Host            string        `koanf:"host"`
	Port            uint16        `koanf:"port"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	AllowedHeaders  []string      `koanf:"allowed_headers"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type RateLimiterConfig struct {
	MaxRatePerSecond int           `koanf:"maxRatePerSecond"`
	MaxBurst         int           `koanf:"maxBurst"`
	CacheTTL         time.Duration `koanf:"cacheTTL"`
	SourceHeaderKey  string        `koanf:"sourceHeaderKey"`
	// RedisAddr switches the bucket store from memory to Redis when set.
	RedisAddr string `koanf:"redisAddr"`
	// UpgradesPerMinute caps websocket upgrades per client IP.
	UpgradesPerMinute int `koanf:"upgradesPerMinute"`
}

type MessageStoreConfig struct {
	Capacity      uint          `koanf:"capacity"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	MaxFrameBytes int64         `koanf:"max_frame_bytes"`
}

type RoomStoreConfig struct {
	Capacity        uint          `koanf:"capacity"`
	IdleExpiry      time.Duration `koanf:"idle_expiry"`
	DefaultRoomID   string        `koanf:"default_room_id"`
	DefaultRoomName string        `koanf:"default_room_name"`
}

type WebSocketConfig struct {
	SendBuffer      int           `koanf:"send_buffer"`
	FramesPerSecond float64       `koanf:"frames_per_second"`
	FrameBurst      int           `koanf:"frame_burst"`
	PingInterval    time.Duration `koanf:"ping_interval"`
	PongWait        time.Duration `koanf:"pong_wait"`
}

type LoggerConfig struct {
	Backend  string `koanf:"backend"`
	Level    string `koanf:"level"`
	Encoding string `koanf:"encoding"`
	FilePath string `koanf:"file_path"`
}

type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Exporter    string  `koanf:"exporter"`
	Endpoint    string  `koanf:"endpoint"`
	Environment string  `koanf:"environment"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

// Load reads the YAML file at path, if any, then fills defaults and applies
// environment overrides. An empty path yields a defaults-only config.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyDefaults(k)
	applyEnvOverrides(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	// HTTP defaults
	setDefault(k, "http.host", "0.0.0.0")
	setDefault(k, "http.port", 3001)
	setDefault(k, "http.read_timeout", 10*time.Second)
	setDefault(k, "http.write_timeout", 30*time.Second)
	setDefault(k, "http.shutdown_timeout", 5*time.Second)
	setDefault(k, "http.allowed_origins", []string{"*"})
	setDefault(k, "http.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-ID"})

	// Rate limiter defaults
	setDefault(k, "rateLimiter.maxRatePerSecond", 10)
	setDefault(k, "rateLimiter.maxBurst", 20)
	setDefault(k, "rateLimiter.cacheTTL", 5*time.Minute)
	setDefault(k, "rateLimiter.sourceHeaderKey", "X-Forwarded-For")
	setDefault(k, "rateLimiter.upgradesPerMinute", 30)

	// Store defaults
	setDefault(k, "message_store.capacity", 100)
	setDefault(k, "message_store.sweep_interval", time.Minute)
	setDefault(k, "message_store.max_frame_bytes", 14<<20)
	setDefault(k, "room_store.capacity", 100)
	setDefault(k, "room_store.idle_expiry", 30*time.Minute)
	setDefault(k, "room_store.default_room_id", "main")
	setDefault(k, "room_store.default_room_name", "Main Terminal")

	// Websocket defaults
	setDefault(k, "websocket.send_buffer", 64)
	setDefault(k, "websocket.frames_per_second", 20)
	setDefault(k, "websocket.frame_burst", 40)
	setDefault(k, "websocket.ping_interval", 54*time.Second)
	setDefault(k, "websocket.pong_wait", 60*time.Second)

	setDefault(k, "logger.backend", "zap")
	setDefault(k, "logger.level", "info")
	setDefault(k, "logger.encoding", "json")

	setDefault(k, "tracing.enabled", false)
	setDefault(k, "tracing.exporter", "otlp")
	setDefault(k, "tracing.endpoint", "http://jaeger:4318/v1/traces")
	setDefault(k, "tracing.environment", "development")
	setDefault(k, "tracing.sample_ratio", 1.0)
}

func applyEnvOverrides(k *koanf.Koanf) {
	// HTTP config from env
	if host := env.GetString("HTTP_HOST", ""); host != "" {
		k.Set("http.host", host)
	}
	if port := env.GetInt("HTTP_PORT", 0); port > 0 {
		k.Set("http.port", port)
	}
	if readTimeout := env.GetInt("HTTP_READ_TIMEOUT_SECONDS", 0); readTimeout > 0 {
		k.Set("http.read_timeout", time.Duration(readTimeout)*time.Second)
	}
	if writeTimeout := env.GetInt("HTTP_WRITE_TIMEOUT_SECONDS", 0); writeTimeout > 0 {
		k.Set("http.write_timeout", time.Duration(writeTimeout)*time.Second)
	}

	// Rate limiter config from env
	if maxRate := env.GetInt("RATE_LIMIT_MAX_RATE_PER_SECOND", 0); maxRate > 0 {
		k.Set("rateLimiter.maxRatePerSecond", maxRate)
	}
	if maxBurst := env.GetInt("RATE_LIMIT_MAX_BURST", 0); maxBurst > 0 {
		k.Set("rateLimiter.maxBurst", maxBurst)
	}
	if cacheTTL := env.GetInt("RATE_LIMIT_CACHE_TTL_MINUTES", 0); cacheTTL > 0 {
		k.Set("rateLimiter.cacheTTL", time.Duration(cacheTTL)*time.Minute)
	}
	if sourceKey := env.GetString("RATE_LIMIT_SOURCE_HEADER_KEY", ""); sourceKey != "" {
		k.Set("rateLimiter.sourceHeaderKey", sourceKey)
	}
	if addr := env.GetString("REDIS_ADDR", ""); addr != "" {
		k.Set("rateLimiter.redisAddr", addr)
	}

	// Store config from env
	if roomCapacity := env.GetInt("ROOM_STORE_CAPACITY", 0); roomCapacity > 0 {
		k.Set("room_store.capacity", uint(roomCapacity))
	}
	if idle := env.GetDuration("ROOM_STORE_IDLE_EXPIRY", 0); idle > 0 {
		k.Set("room_store.idle_expiry", idle)
	}
	if messageCapacity := env.GetInt("MESSAGE_STORE_CAPACITY", 0); messageCapacity > 0 {
		k.Set("message_store.capacity", uint(messageCapacity))
	}
	if sweep := env.GetDuration("MESSAGE_STORE_SWEEP_INTERVAL", 0); sweep > 0 {
		k.Set("message_store.sweep_interval", sweep)
	}

	if backend := env.GetString("LOGGER_BACKEND", ""); backend != "" {
		k.Set("logger.backend", backend)
	}
	if level := env.GetString("LOGGER_LEVEL", ""); level != "" {
		k.Set("logger.level", level)
	}
	if path := env.GetString("LOGGER_FILE_PATH", ""); path != "" {
		k.Set("logger.file_path", path)
	}

	if enabled := env.GetString("TRACING_ENABLED", ""); enabled != "" {
		k.Set("tracing.enabled", env.GetBool("TRACING_ENABLED", false))
	}
	if endpoint := env.GetString("TRACING_ENDPOINT", ""); endpoint != "" {
		k.Set("tracing.endpoint", endpoint)
	}
	if exporter := env.GetString("TRACING_EXPORTER", ""); exporter != "" {
		k.Set("tracing.exporter", exporter)
	}
}

// setDefault only sets the value if the key doesn't already exist
func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}
