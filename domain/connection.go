// Package domain contains core concepts of the engagement engine.
// This file defines live connection sessions and related invariants.
package domain

import "time"

// ConnectionID identifies a single live socket session.
// One user may hold several connections at once (multiple devices).
type ConnectionID string

// Connection is the per-session state owned by the registry.
// It is created on a successful auth handshake and destroyed on
// disconnect or heartbeat timeout.
type Connection struct {
	ID            ConnectionID
	UserID        string
	DisplayName   string
	Rooms         map[RoomID]struct{}
	ConnectedAt   time.Time
	LastHeartbeat time.Time
	Active        bool
}

func NewConnection(id ConnectionID, userID, displayName string, now time.Time) *Connection {
	return &Connection{
		ID:            id,
		UserID:        userID,
		DisplayName:   displayName,
		Rooms:         make(map[RoomID]struct{}),
		ConnectedAt:   now,
		LastHeartbeat: now,
		Active:        true,
	}
}

// Stale reports whether the connection has missed heartbeats for longer
// than the given timeout.
func (c *Connection) Stale(now time.Time, timeout time.Duration) bool {
	return now.Sub(c.LastHeartbeat) > timeout
}
