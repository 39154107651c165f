package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/scosock/internal/link"
	"github.com/danmuck/scosock/internal/sco"
)

// EchoListener is a converted echo entry.
type EchoListener struct {
	Addr    sco.Addr
	Backlog int
}

// Protocol converts to sco.Config; zero values keep the sco defaults.
func (c SCOConfig) Protocol() (sco.Config, error) {
	connect, err := parseDuration(c.ConnectTimeout)
	if err != nil {
		return sco.Config{}, fmt.Errorf("connect_timeout: %w", err)
	}
	disconnect, err := parseDuration(c.DisconnectTimeout)
	if err != nil {
		return sco.Config{}, fmt.Errorf("disconnect_timeout: %w", err)
	}
	return sco.Config{
		DefaultMTU:        c.DefaultMTU,
		ConnectTimeout:    connect,
		DisconnectTimeout: disconnect,
		RecvBufferSize:    c.RecvBufferSize,
	}.WithDefaults(), nil
}

func (a AdapterConfig) Link() (link.AdapterConfig, error) {
	addr, err := sco.ParseAddr(a.Addr)
	if err != nil {
		return link.AdapterConfig{}, err
	}
	if addr.IsAny() {
		return link.AdapterConfig{}, fmt.Errorf("addr %s is the wildcard", a.Addr)
	}
	if a.MTU < 0 {
		return link.AdapterConfig{}, fmt.Errorf("mtu must not be negative")
	}
	class, err := ParseDevClass(a.DevClass)
	if err != nil {
		return link.AdapterConfig{}, err
	}
	return link.AdapterConfig{
		Addr:         addr,
		MTU:          a.MTU,
		DevClass:     class,
		Unresponsive: a.Unresponsive,
	}, nil
}

func (e EchoConfig) Listener() (EchoListener, error) {
	addr, err := sco.ParseAddr(e.Addr)
	if err != nil {
		return EchoListener{}, err
	}
	return EchoListener{Addr: addr, Backlog: e.Backlog}, nil
}

// ParseDevClass reads a 24-bit class of device such as "0x240404" into
// its little-endian byte form.
func ParseDevClass(raw string) ([3]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return [3]byte{}, nil
	}
	v, err := strconv.ParseUint(raw, 0, 32)
	if err != nil || v > 0xffffff {
		return [3]byte{}, fmt.Errorf("dev_class %q is not a 24-bit value", raw)
	}
	return [3]byte{byte(v), byte(v >> 8), byte(v >> 16)}, nil
}
