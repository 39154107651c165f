package sco

import (
	"errors"
	"fmt"
)

var (
	ErrBadState               = errors.New("sco: operation not valid in current state")
	ErrAddrInUse              = errors.New("sco: address already in use")
	ErrBusy                   = errors.New("sco: channel already paired")
	ErrConnectionRefused      = errors.New("sco: connection refused")
	ErrNotConnected           = errors.New("sco: socket not connected")
	ErrTimedOut               = errors.New("sco: connection timed out")
	ErrUnreachable            = errors.New("sco: no route to host")
	ErrConnectionReset        = errors.New("sco: connection reset by peer")
	ErrConnectionAborted      = errors.New("sco: connection aborted")
	ErrHostDown               = errors.New("sco: host is down")
	ErrMessageTooLarge        = errors.New("sco: message too large")
	ErrSocketTypeNotSupported = errors.New("sco: socket type not supported")
	ErrInvalidArgument        = errors.New("sco: invalid argument")
	ErrInterrupted            = errors.New("sco: wait interrupted")
	ErrProtocolClosed         = errors.New("sco: protocol closed")
)

// Reason is a link-layer status or disconnect reason code.
type Reason uint8

const (
	ReasonSuccess              Reason = 0x00
	ReasonPageTimeout          Reason = 0x04
	ReasonConnectionTimeout    Reason = 0x08
	ReasonRejectedResources    Reason = 0x0d
	ReasonRejectedSecurity     Reason = 0x0e
	ReasonRejectedAddress      Reason = 0x0f
	ReasonRemoteUserTerminated Reason = 0x13
	ReasonRemoteLowResources   Reason = 0x14
	ReasonRemotePowerOff       Reason = 0x15
	ReasonLocalHostTerminated  Reason = 0x16
)

var reasonName = map[Reason]string{
	ReasonSuccess:              "success",
	ReasonPageTimeout:          "page timeout",
	ReasonConnectionTimeout:    "connection timeout",
	ReasonRejectedResources:    "rejected: limited resources",
	ReasonRejectedSecurity:     "rejected: security",
	ReasonRejectedAddress:      "rejected: unacceptable address",
	ReasonRemoteUserTerminated: "remote user terminated",
	ReasonRemoteLowResources:   "remote low resources",
	ReasonRemotePowerOff:       "remote power off",
	ReasonLocalHostTerminated:  "local host terminated",
}

func (r Reason) String() string {
	if name, ok := reasonName[r]; ok {
		return name
	}
	return fmt.Sprintf("reason 0x%02x", uint8(r))
}

// Err maps a link reason to the socket error taxonomy; success maps to nil.
func (r Reason) Err() error {
	switch r {
	case ReasonSuccess:
		return nil
	case ReasonPageTimeout:
		return ErrHostDown
	case ReasonConnectionTimeout:
		return ErrTimedOut
	case ReasonRejectedResources, ReasonRejectedSecurity, ReasonRejectedAddress:
		return ErrConnectionRefused
	case ReasonRemoteUserTerminated, ReasonRemoteLowResources, ReasonRemotePowerOff:
		return ErrConnectionReset
	case ReasonLocalHostTerminated:
		return ErrConnectionAborted
	default:
		return fmt.Errorf("%w (%s)", ErrConnectionReset, r)
	}
}
