package sco

// LinkKind selects the synchronous link flavour.
type LinkKind uint8

const (
	LinkSCO LinkKind = iota + 1
	LinkESCO
)

func (k LinkKind) String() string {
	switch k {
	case LinkSCO:
		return "sco"
	case LinkESCO:
		return "esco"
	default:
		return "unknown"
	}
}

// LinkParams describes the link a socket asks the transport for.
type LinkParams struct {
	Kind  LinkKind
	Voice Voice
}

// Handle is one link-layer connection as seen by this layer. Implementations
// must be comparable; the handle is used as a map key.
type Handle interface {
	LocalAddr() Addr
	RemoteAddr() Addr
	// Connected reports whether the link is already up.
	Connected() bool
	// Down reports whether the link has gone down and the status this side
	// observed when it did.
	Down() (Reason, bool)
	// Outbound reports whether this side initiated the link.
	Outbound() bool
	// MTU is the largest payload one send may carry; 0 means unknown.
	MTU() int
	// ConnHandle is the link-layer connection handle number.
	ConnHandle() uint16
	DevClass() [3]byte
}

// Transport is the link layer this socket layer rides on.
//
// Contract: none of these calls may invoke the Protocol callbacks
// synchronously; events are delivered from the transport's own goroutine.
type Transport interface {
	// Connect requests a link; the returned handle carries one reference
	// owned by the caller.
	Connect(local, remote Addr, params LinkParams) (Handle, error)
	Send(h Handle, b []byte) (int, error)
	Hold(h Handle)
	// Release drops one reference; dropping the last one tears the link down.
	Release(h Handle)
}

// Events is the callback surface a transport drives. *Protocol implements
// it; calls arrive on the transport's goroutine.
type Events interface {
	OnConnectIndication(local, remote Addr, kind LinkKind) bool
	OnConnectConfirmation(h Handle, status Reason)
	OnDisconnectIndication(h Handle, reason Reason)
	OnDataReceived(h Handle, b []byte)
}
