package server

import (
	"net"
	"strconv"
	"time"

	"github.com/kingrea/smart-mirror/internal/config"
)

const (
	// DefaultHost listens on every interface so the mirror display and the
	// settings UI on another device can both reach it.
	DefaultHost = "0.0.0.0"
	// DefaultPort is the default TCP port.
	DefaultPort = 8080
	// DefaultMaxBodyBytes limits request payloads to 1 MB.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds handler writes. Stream connections set
	// their own deadlines per frame.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Settings captures runtime configuration for the HTTP server.
type Settings struct {
	Host         string
	Port         int
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SettingsFromConfig builds Settings from the service configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{
		Host:         DefaultHost,
		Port:         DefaultPort,
		MaxBodyBytes: DefaultMaxBodyBytes,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}
	if cfg != nil {
		raw := cfg.Server
		if raw.Host != "" {
			settings.Host = raw.Host
		}
		if isValidPort(raw.Port) {
			settings.Port = raw.Port
		}
		settings.MaxBodyBytes = raw.MaxBodyBytes
		settings.ReadTimeout = raw.ReadTimeout
		settings.WriteTimeout = raw.WriteTimeout
		settings.IdleTimeout = raw.IdleTimeout
	}
	settings.normalize()
	return settings
}

func (s *Settings) normalize() {
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if !isValidPort(s.Port) && s.Port != 0 {
		s.Port = DefaultPort
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
