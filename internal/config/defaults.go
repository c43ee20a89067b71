package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL              = "http://localhost:5000"
	DefaultWSURL                = "ws://localhost:5000/ws"
	DefaultAPITimeout           = 30 * time.Second
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultPingInterval         = 30 * time.Second
	DefaultPingTimeout          = 60 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultBufferSize           = 1000
	DefaultPollInterval         = 30 * time.Second
	DefaultFetchTimeout         = 10 * time.Second
	DefaultStorageDriver        = "file"
	DefaultStoragePath          = ".papertrade/session.yaml"
	DefaultSQLitePath           = ".papertrade/session.db"
	DefaultRedisKeyPrefix       = "papertrade:"
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultJournalBatchSize     = 500
	DefaultJournalFlush         = 5 * time.Second
	DefaultStatusAddr           = "127.0.0.1:8089"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

// DefaultSymbols are watched when feeds.symbols is empty.
var DefaultSymbols = []string{"BTC", "ETH"}

// ApplyDefaults fills every unset optional field.
func (c *ClientConfig) ApplyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	// Realtime defaults
	if c.Realtime.ReconnectBaseDelay == 0 {
		c.Realtime.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Realtime.MaxReconnectAttempts == 0 {
		c.Realtime.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Realtime.PingInterval == 0 {
		c.Realtime.PingInterval = DefaultPingInterval
	}
	if c.Realtime.PingTimeout == 0 {
		c.Realtime.PingTimeout = DefaultPingTimeout
	}
	if c.Realtime.WriteTimeout == 0 {
		c.Realtime.WriteTimeout = DefaultWriteTimeout
	}
	if c.Realtime.BufferSize == 0 {
		c.Realtime.BufferSize = DefaultBufferSize
	}

	// Feed defaults
	if c.Feeds.PollInterval == 0 {
		c.Feeds.PollInterval = DefaultPollInterval
	}
	if c.Feeds.FetchTimeout == 0 {
		c.Feeds.FetchTimeout = DefaultFetchTimeout
	}
	if len(c.Feeds.Symbols) == 0 {
		c.Feeds.Symbols = append([]string(nil), DefaultSymbols...)
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case "file":
			c.Storage.Path = DefaultStoragePath
		case "sqlite":
			c.Storage.Path = DefaultSQLitePath
		}
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultJournalBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultJournalFlush
	}

	if c.Status.Addr == "" {
		c.Status.Addr = DefaultStatusAddr
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
