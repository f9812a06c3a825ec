// Package session implements the Atomic Session Store of spec component
// C6: a cross-process, file-locked, crash-safe JSON journal of node
// records.
package session

import "time"

// Record is one Node Record (spec section 3 and 6).
type Record struct {
	NodeID           string    `json:"node_id"`
	APIPort          int       `json:"api_port"`
	P2PPort          int       `json:"p2p_port"`
	RegistrationTime time.Time `json:"registration_time"`
	LastSeen         float64   `json:"last_seen"`
	IsActive         bool      `json:"is_active"`
}

// journal is the on-disk shape of the session file (spec section 6,
// "Session file format").
type journal struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Nodes     []Record  `json:"nodes"`
}
