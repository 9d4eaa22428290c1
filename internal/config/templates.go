package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders cfg as a TOML document LoadFile accepts.
func Template(cfg Config) (string, error) {
	doc := fileConfig{
		Browser: browserSection{
			Addr:       cfg.Browser.Addr,
			ClientName: cfg.Session.ClientName,
			Services:   cfg.Session.Services,
		},
		Session: sessionSection{
			ConnectTimeout:     cfg.Session.ConnectTimeout.String(),
			HandshakeTimeout:   cfg.Session.HandshakeTimeout.String(),
			WriteTimeout:       cfg.Session.WriteTimeout.String(),
			ResponseTimeout:    cfg.Session.ResponseTimeout.String(),
			EventBuffer:        cfg.Session.EventBuffer,
			MaxConnectAttempts: cfg.Session.MaxConnectAttempts,
		},
		Debugger: debuggerSection{
			ScriptRetry:         cfg.Debugger.ScriptRetry,
			ScriptRetryInterval: cfg.Debugger.ScriptRetryInterval.String(),
			RetryMultiplier:     cfg.Debugger.RetryMultiplier,
			ResponseTimeout:     cfg.Debugger.ResponseTimeout.String(),
		},
		Admin: adminSection{
			Listen:      cfg.Admin.Listen,
			CorsOrigins: cfg.Admin.CorsOrigins,
		},
	}
	out, err := toml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return string(out), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template(Default())
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
