// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/samber/lo"

	"github.com/andy6609/roomchat/internal/chat"
)

type Config struct {
	ChatAddr           string        `env:"CHAT_ADDR,default=:6667"`
	HTTPAddr           string        `env:"HTTP_ADDR,default=:9090"`
	MaxLineLength      int           `env:"MAX_LINE_LENGTH,default=4096"`
	MaxNickLength      int           `env:"MAX_NICK_LENGTH,default=32"`
	MaxRoomNameLength  int           `env:"MAX_ROOM_NAME_LENGTH,default=64"`
	MaxSessions        int           `env:"MAX_SESSIONS,default=1024"`
	AcceptWakeInterval time.Duration `env:"ACCEPT_WAKE_INTERVAL,default=1s"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	BroadcastFanout    int           `env:"BROADCAST_FANOUT,default=64"`
	ShutdownNotice     time.Duration `env:"SHUTDOWN_NOTICE_TIMEOUT,default=1s"`
	WSAllowedOrigins   string        `env:"WS_ALLOWED_ORIGINS"`
	LogLevel           string        `env:"LOG_LEVEL,default=info"`
}

// Load reads the configuration from environ, a list of KEY=VALUE pairs
// such as os.Environ returns. Unset keys take their defaults.
func Load(environ []string) (Config, error) {
	es, err := env.EnvironToEnvSet(environ)
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ChatAddr == "" {
		return fmt.Errorf("CHAT_ADDR must not be empty")
	}
	for _, f := range []struct {
		name  string
		value int
	}{
		{"MAX_LINE_LENGTH", c.MaxLineLength},
		{"MAX_NICK_LENGTH", c.MaxNickLength},
		{"MAX_ROOM_NAME_LENGTH", c.MaxRoomNameLength},
		{"MAX_SESSIONS", c.MaxSessions},
		{"BROADCAST_FANOUT", c.BroadcastFanout},
	} {
		if f.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", f.name, f.value)
		}
	}
	if c.AcceptWakeInterval <= 0 {
		return fmt.Errorf("ACCEPT_WAKE_INTERVAL must be positive, got %s", c.AcceptWakeInterval)
	}
	if c.ShutdownNotice <= 0 {
		return fmt.Errorf("SHUTDOWN_NOTICE_TIMEOUT must be positive, got %s", c.ShutdownNotice)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("WRITE_TIMEOUT must not be negative, got %s", c.WriteTimeout)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func (c Config) ChatOptions() chat.Options {
	return chat.Options{
		Addr:               c.ChatAddr,
		MaxLineLength:      c.MaxLineLength,
		MaxNickLength:      c.MaxNickLength,
		MaxRoomNameLength:  c.MaxRoomNameLength,
		MaxSessions:        c.MaxSessions,
		AcceptWakeInterval: c.AcceptWakeInterval,
		WriteTimeout:       c.WriteTimeout,
		BroadcastFanout:    c.BroadcastFanout,

		ShutdownNoticeTimeout: c.ShutdownNotice,
	}
}

// AllowedOrigins splits WSAllowedOrigins on commas.
func (c Config) AllowedOrigins() []string {
	return lo.Compact(lo.Map(strings.Split(c.WSAllowedOrigins, ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	}))
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
