package config

import "time"

// ClientConfig is the root configuration for a papertrade client.
type ClientConfig struct {
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Storage  StorageConfig  `yaml:"storage"`
	Journal  JournalConfig  `yaml:"journal"`
	Status   StatusConfig   `yaml:"status"`
	Log      LogConfig      `yaml:"log"`
}

// APIConfig holds trading service endpoints.
type APIConfig struct {
	RestURL string        `yaml:"rest_url"`
	WSURL   string        `yaml:"ws_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RealtimeConfig holds WebSocket channel manager settings.
type RealtimeConfig struct {
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
}

// FeedsConfig holds data feed settings.
type FeedsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Symbols      []string      `yaml:"symbols"`
}

// StorageConfig selects where the session token is persisted.
type StorageConfig struct {
	Driver string      `yaml:"driver"` // "file", "sqlite", "redis" or "memory"
	Path   string      `yaml:"path"`   // file and sqlite backends
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig holds the Redis token store connection.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// JournalConfig holds the optional PostgreSQL price journal.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// StatusConfig holds the local status API settings.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
