package protocol

// MessageType defines the type of a status websocket message
type MessageType string

const (
	// TypeMode is pushed whenever the session mode changes
	TypeMode MessageType = "mode"

	// TypePeer is pushed when the peer connects or disconnects
	TypePeer MessageType = "peer"

	// TypeSetEdge is sent by a client to change the target edge
	TypeSetEdge MessageType = "set_edge"

	// TypeQuit is sent by a client to stop the service
	TypeQuit MessageType = "quit"

	// TypeError reports a rejected client command
	TypeError MessageType = "error"
)

// Message is the generic container for all status websocket messages
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ModePayload is the payload for TypeMode
type ModePayload struct {
	Mode       string `json:"mode"`
	TargetEdge string `json:"target_edge,omitempty"`
}

// PeerPayload is the payload for TypePeer
type PeerPayload struct {
	Connected bool `json:"connected"`
}

// SetEdgePayload is the payload for TypeSetEdge
type SetEdgePayload struct {
	Edge string `json:"edge"`
}

// ErrorPayload is the payload for TypeError
type ErrorPayload struct {
	Message string `json:"message"`
}
