package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/scopectl/internal/debugger"
	"github.com/danmuck/scopectl/internal/protocol/session"
)

var ErrInvalid = errors.New("config: invalid")

// Config is the resolved scopectl setup. Keys missing from the file keep the
// values from Default.
type Config struct {
	Browser  BrowserConfig
	Session  session.Config
	Debugger debugger.Config
	Admin    AdminConfig
}

type BrowserConfig struct {
	Addr string
}

type AdminConfig struct {
	Listen      string
	CorsOrigins []string
}

func Default() Config {
	return Config{
		Browser:  BrowserConfig{Addr: "127.0.0.1:7001"},
		Session:  session.DefaultConfig(),
		Debugger: debugger.DefaultConfig(),
		Admin: AdminConfig{
			Listen:      "127.0.0.1:9400",
			CorsOrigins: []string{"http://localhost:3000"},
		},
	}
}

type fileConfig struct {
	Browser  browserSection  `toml:"browser"`
	Session  sessionSection  `toml:"session"`
	Debugger debuggerSection `toml:"debugger"`
	Admin    adminSection    `toml:"admin"`
}

type browserSection struct {
	Addr       string   `toml:"addr"`
	ClientName string   `toml:"client_name"`
	Services   []string `toml:"services"`
}

type sessionSection struct {
	ConnectTimeout     string `toml:"connect_timeout"`
	HandshakeTimeout   string `toml:"handshake_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	ResponseTimeout    string `toml:"response_timeout"`
	EventBuffer        int    `toml:"event_buffer"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
}

type debuggerSection struct {
	ScriptRetry         int     `toml:"script_retry"`
	ScriptRetryInterval string  `toml:"script_retry_interval"`
	RetryMultiplier     float64 `toml:"retry_multiplier"`
	ResponseTimeout     string  `toml:"response_timeout"`
}

type adminSection struct {
	Listen      string   `toml:"listen"`
	CorsOrigins []string `toml:"cors_origins"`
}

// LoadFile decodes path on top of Default and validates the result.
func LoadFile(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := apply(Default(), raw, meta)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is LoadFile for an in-memory document.
func Parse(doc string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(doc, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed: %w", err)
	}
	return apply(Default(), raw, meta)
}

func apply(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %s", ErrInvalid, undecoded[0].String())
	}

	if meta.IsDefined("browser", "addr") {
		cfg.Browser.Addr = strings.TrimSpace(raw.Browser.Addr)
	}
	if meta.IsDefined("browser", "client_name") {
		cfg.Session.ClientName = strings.TrimSpace(raw.Browser.ClientName)
	}
	if meta.IsDefined("browser", "services") {
		cfg.Session.Services = normalizeList(raw.Browser.Services)
	}

	durations := []struct {
		key    []string
		raw    string
		target *time.Duration
	}{
		{[]string{"session", "connect_timeout"}, raw.Session.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{[]string{"session", "handshake_timeout"}, raw.Session.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{[]string{"session", "write_timeout"}, raw.Session.WriteTimeout, &cfg.Session.WriteTimeout},
		{[]string{"session", "response_timeout"}, raw.Session.ResponseTimeout, &cfg.Session.ResponseTimeout},
		{[]string{"debugger", "script_retry_interval"}, raw.Debugger.ScriptRetryInterval, &cfg.Debugger.ScriptRetryInterval},
		{[]string{"debugger", "response_timeout"}, raw.Debugger.ResponseTimeout, &cfg.Debugger.ResponseTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", strings.Join(d.key, "."), err)
		}
		*d.target = v
	}

	if meta.IsDefined("session", "event_buffer") {
		cfg.Session.EventBuffer = raw.Session.EventBuffer
	}
	if meta.IsDefined("session", "max_connect_attempts") {
		cfg.Session.MaxConnectAttempts = raw.Session.MaxConnectAttempts
	}
	if meta.IsDefined("debugger", "script_retry") {
		cfg.Debugger.ScriptRetry = raw.Debugger.ScriptRetry
	}
	if meta.IsDefined("debugger", "retry_multiplier") {
		cfg.Debugger.RetryMultiplier = raw.Debugger.RetryMultiplier
	}

	if meta.IsDefined("admin", "listen") {
		cfg.Admin.Listen = strings.TrimSpace(raw.Admin.Listen)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = normalizeList(raw.Admin.CorsOrigins)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Browser.Addr) == "" {
		return fmt.Errorf("%w: browser.addr is required", ErrInvalid)
	}
	if strings.TrimSpace(cfg.Session.ClientName) == "" {
		return fmt.Errorf("%w: browser.client_name is required", ErrInvalid)
	}
	if len(cfg.Session.Services) == 0 {
		return fmt.Errorf("%w: browser.services must name at least one service", ErrInvalid)
	}
	if cfg.Session.EventBuffer < 0 {
		return fmt.Errorf("%w: session.event_buffer must be >= 0", ErrInvalid)
	}
	for name, d := range map[string]time.Duration{
		"session.connect_timeout":   cfg.Session.ConnectTimeout,
		"session.handshake_timeout": cfg.Session.HandshakeTimeout,
		"session.write_timeout":     cfg.Session.WriteTimeout,
		"session.response_timeout":  cfg.Session.ResponseTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must be >= 0", ErrInvalid, name)
		}
	}
	if err := cfg.Debugger.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, item := range in {
		v := strings.TrimSpace(item)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
