package sco

// State is the socket lifecycle state.
type State int32

const (
	StateOpen State = iota
	StateBound
	StateListen
	StateConnect
	StateConnected
	StateDisconn
	StateClosed
)

var stateName = [...]string{
	StateOpen:      "OPEN",
	StateBound:     "BOUND",
	StateListen:    "LISTEN",
	StateConnect:   "CONNECT",
	StateConnected: "CONNECTED",
	StateDisconn:   "DISCONN",
	StateClosed:    "CLOSED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateName) {
		return "UNKNOWN"
	}
	return stateName[s]
}

// hasChannel reports states that own (or are acquiring) a channel.
func (s State) hasChannel() bool {
	return s == StateConnect || s == StateConnected || s == StateDisconn
}

// SocketType is the socket kind requested at open.
type SocketType int

const (
	SeqPacket SocketType = iota + 1
	Stream
	Datagram
	Raw
)

// Voice is the air-coding setting passed to the link layer.
type Voice uint16

const (
	VoiceCVSD        Voice = 0x0060
	VoiceTransparent Voice = 0x0003
)

func (v Voice) valid() bool {
	return v == VoiceCVSD || v == VoiceTransparent
}
