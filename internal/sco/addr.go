package sco

import (
	"fmt"
	"net"
	"strings"
)

// Addr is a 48-bit device address in display order.
type Addr [6]byte

// AddrAny is the wildcard address.
var AddrAny = Addr{}

// ParseAddr parses "00:11:22:33:44:55" (or '-' separated) into an Addr.
func ParseAddr(s string) (Addr, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return Addr{}, fmt.Errorf("%w: address %q: %v", ErrInvalidArgument, s, err)
	}
	if len(hw) != len(Addr{}) {
		return Addr{}, fmt.Errorf("%w: address %q is not 48-bit", ErrInvalidArgument, s)
	}
	var a Addr
	copy(a[:], hw)
	return a, nil
}

// MustParseAddr is ParseAddr for constants and tests.
func MustParseAddr(s string) Addr {
	a, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Addr) IsAny() bool {
	return a == AddrAny
}

func (a Addr) String() string {
	return strings.ToUpper(net.HardwareAddr(a[:]).String())
}

// MarshalText keeps JSON and TOML output in display form.
func (a Addr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Addr) UnmarshalText(b []byte) error {
	v, err := ParseAddr(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
