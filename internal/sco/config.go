package sco

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMTU applies when the transport reports an MTU of zero.
	DefaultMTU = 60

	defaultConnectTimeout    = 40 * time.Second
	defaultDisconnectTimeout = 2 * time.Second
	defaultRecvBufferSize    = 64 * 1024
)

// Config defines protocol-wide defaults.
type Config struct {
	// DefaultMTU is used for channels whose transport reports MTU 0.
	DefaultMTU int
	// ConnectTimeout is the initial send timeout of new sockets, which is the
	// connect timer duration.
	ConnectTimeout time.Duration
	// DisconnectTimeout bounds the DISCONN state entered by Shutdown.
	DisconnectTimeout time.Duration
	// RecvBufferSize bounds queued inbound payload per socket.
	RecvBufferSize int

	Logger *zerolog.Logger
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		DefaultMTU:        DefaultMTU,
		ConnectTimeout:    defaultConnectTimeout,
		DisconnectTimeout: defaultDisconnectTimeout,
		RecvBufferSize:    defaultRecvBufferSize,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.DefaultMTU <= 0 {
		c.DefaultMTU = def.DefaultMTU
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = def.DisconnectTimeout
	}
	if c.RecvBufferSize <= 0 {
		c.RecvBufferSize = def.RecvBufferSize
	}
	if c.Logger == nil {
		l := log.Logger.With().Str("proto", "sco").Logger()
		c.Logger = &l
	}
	return c
}
