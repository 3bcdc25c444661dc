package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load(nil)
	req.NoError(err)
	req.NoError(cfg.Validate())

	req.Equal(":6667", cfg.ChatAddr)
	req.Equal(":9090", cfg.HTTPAddr)
	req.Equal(4096, cfg.MaxLineLength)
	req.Equal(1024, cfg.MaxSessions)
	req.Equal(time.Second, cfg.AcceptWakeInterval)
	req.Equal(10*time.Second, cfg.WriteTimeout)
	req.Equal(time.Second, cfg.ShutdownNotice)
	req.Empty(cfg.AllowedOrigins())
}

func TestLoad_Overrides(t *testing.T) {
	req := require.New(t)

	cfg, err := Load([]string{
		"CHAT_ADDR=127.0.0.1:7000",
		"MAX_SESSIONS=8",
		"WRITE_TIMEOUT=0s",
		"SHUTDOWN_NOTICE_TIMEOUT=200ms",
		"LOG_LEVEL=debug",
		"WS_ALLOWED_ORIGINS=http://a.example, http://b.example,",
	})
	req.NoError(err)
	req.NoError(cfg.Validate())

	req.Equal("127.0.0.1:7000", cfg.ChatAddr)
	req.Equal(8, cfg.MaxSessions)
	req.Zero(cfg.WriteTimeout)
	req.Equal([]string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins())

	opts := cfg.ChatOptions()
	req.Equal("127.0.0.1:7000", opts.Addr)
	req.Equal(8, opts.MaxSessions)
	req.Zero(opts.WriteTimeout)
	req.Equal(200*time.Millisecond, opts.ShutdownNoticeTimeout)
}

func TestLoad_RejectsBadValue(t *testing.T) {
	_, err := Load([]string{"MAX_SESSIONS=lots"})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load(nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.ChatAddr = "" }},
		{"zero line length", func(c *Config) { c.MaxLineLength = 0 }},
		{"negative sessions", func(c *Config) { c.MaxSessions = -1 }},
		{"zero wake interval", func(c *Config) { c.AcceptWakeInterval = 0 }},
		{"negative write timeout", func(c *Config) { c.WriteTimeout = -time.Second }},
		{"zero shutdown notice", func(c *Config) { c.ShutdownNotice = 0 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARN")
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("")
	require.Error(t, err)
}
