package config

import "time"

const (
	DefaultReadTimeout       = 30 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 60 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
	// DefaultShutdownTimeout bounds draining the admin server and the mail queue on exit.
	DefaultShutdownTimeout = 30 * time.Second
)

// ServerTimeouts tunes the admin HTTP server. Durations use time.ParseDuration
// syntax; empty, invalid or non-positive values select the defaults.
type ServerTimeouts struct {
	ReadTimeout       string `yaml:"readTimeout"`
	ReadHeaderTimeout string `yaml:"readHeaderTimeout"`
	WriteTimeout      string `yaml:"writeTimeout"`
	IdleTimeout       string `yaml:"idleTimeout"`
	MaxHeaderBytes    int    `yaml:"maxHeaderBytes"`
}

func (t *ServerTimeouts) GetReadTimeout() time.Duration {
	if t == nil {
		return DefaultReadTimeout
	}
	return parseDurationOrDefault(t.ReadTimeout, DefaultReadTimeout)
}

func (t *ServerTimeouts) GetReadHeaderTimeout() time.Duration {
	if t == nil {
		return DefaultReadHeaderTimeout
	}
	return parseDurationOrDefault(t.ReadHeaderTimeout, DefaultReadHeaderTimeout)
}

func (t *ServerTimeouts) GetWriteTimeout() time.Duration {
	if t == nil {
		return DefaultWriteTimeout
	}
	return parseDurationOrDefault(t.WriteTimeout, DefaultWriteTimeout)
}

func (t *ServerTimeouts) GetIdleTimeout() time.Duration {
	if t == nil {
		return DefaultIdleTimeout
	}
	return parseDurationOrDefault(t.IdleTimeout, DefaultIdleTimeout)
}

func (t *ServerTimeouts) GetMaxHeaderBytes() int {
	if t == nil || t.MaxHeaderBytes <= 0 {
		return DefaultMaxHeaderBytes
	}
	return t.MaxHeaderBytes
}

// GetServerTimeouts never returns nil.
func (s Server) GetServerTimeouts() *ServerTimeouts {
	if s.Timeouts == nil {
		return &ServerTimeouts{}
	}
	return s.Timeouts
}

func (s Server) GetShutdownTimeout() time.Duration {
	return parseDurationOrDefault(s.ShutdownTimeout, DefaultShutdownTimeout)
}

func parseDurationOrDefault(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
