// Package session implements the Voice Session State Machine: the
// signalling-level handshake, heartbeat, and resume logic that drives the
// Secure Signalling Channel and Secure Datagram Channel.
package session

// State is one node of the voice handshake.
type State int

const (
	CollectingInitData State = iota
	InitializingWebSocket
	CollectingHello
	SendingIdentify
	CollectingReady
	InitializingDatagramSocket
	SendingSelectProtocol
	CollectingSessionDescription
	Connected
	Reconnect
)

// String renders the state for logging.
func (s State) String() string {
	switch s {
	case CollectingInitData:
		return "collecting_init_data"
	case InitializingWebSocket:
		return "initializing_websocket"
	case CollectingHello:
		return "collecting_hello"
	case SendingIdentify:
		return "sending_identify"
	case CollectingReady:
		return "collecting_ready"
	case InitializingDatagramSocket:
		return "initializing_datagram_socket"
	case SendingSelectProtocol:
		return "sending_select_protocol"
	case CollectingSessionDescription:
		return "collecting_session_description"
	case Connected:
		return "connected"
	case Reconnect:
		return "reconnect"
	default:
		return "unknown"
	}
}
