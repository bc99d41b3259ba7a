// Package session ties edge detection, capture and transport together.
package session

import (
	"edgelink/internal/capture"
	"edgelink/internal/transport"
)

// Mode is the user-visible state of the sender.
type Mode int

const (
	LinkAbsent Mode = iota
	AwaitingPeer
	Idle
	Forwarding
)

func (m Mode) String() string {
	switch m {
	case LinkAbsent:
		return "link_absent"
	case AwaitingPeer:
		return "awaiting_peer"
	case Idle:
		return "idle"
	case Forwarding:
		return "forwarding"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// DeriveMode computes the session mode from its inputs. It is recomputed on
// demand and never stored.
func DeriveMode(link bool, conn transport.State, cm capture.Mode) Mode {
	switch {
	case !link:
		return LinkAbsent
	case conn != transport.PeerConnected:
		return AwaitingPeer
	case cm == capture.Forwarding:
		return Forwarding
	default:
		return Idle
	}
}
