package handshake

import "fmt"

// State is the position of a handshake engine in the exchange.
type State uint8

const (
	Idle State = iota
	HelloSent
	HelloAcked
	ForwardSent
	KeyReceived
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case HelloSent:
		return "HelloSent"
	case HelloAcked:
		return "HelloAcked"
	case ForwardSent:
		return "ForwardSent"
	case KeyReceived:
		return "KeyReceived"
	case Confirmed:
		return "Confirmed"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}
