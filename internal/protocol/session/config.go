package session

import "time"

// Config defines transport/session defaults for one scope connection.
// MaxConnectAttempts bounds Dial retries; zero or less means one attempt.
type Config struct {
	ClientName         string
	Services           []string
	ConnectTimeout     time.Duration
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	ResponseTimeout    time.Duration
	EventBuffer        int
	MaxConnectAttempts int
	Backoff            BackoffConfig
}

// DefaultConfig returns the defaults used when a config file leaves a key out.
func DefaultConfig() Config {
	return Config{
		ClientName:         "scopectl",
		Services:           []string{"ecmascript-debugger", "window-manager"},
		ConnectTimeout:     5 * time.Second,
		HandshakeTimeout:   5 * time.Second,
		WriteTimeout:       10 * time.Second,
		ResponseTimeout:    10 * time.Second,
		EventBuffer:        256,
		MaxConnectAttempts: 3,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ClientName == "" {
		c.ClientName = def.ClientName
	}
	if len(c.Services) == 0 {
		c.Services = def.Services
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = def.ResponseTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
