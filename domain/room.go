// Package domain contains core concepts of the engagement engine.
// This file defines room identifiers and their naming scheme.
// No runtime, network, or UI logic should be added here.
package domain

import "strings"

// RoomID is an opaque broadcast scope. Two forms exist:
// "pregnancy-{pregnancyID}" for the whole family feed and
// "pregnancy-{pregnancyID}-{groupID}" for a sub-group within it.
type RoomID string

const roomPrefix = "pregnancy-"

func PregnancyRoom(pregnancyID string) RoomID {
	return RoomID(roomPrefix + pregnancyID)
}

func GroupRoom(pregnancyID, groupID string) RoomID {
	return RoomID(roomPrefix + pregnancyID + "-" + groupID)
}

// Valid reports whether the identifier follows the pregnancy room scheme.
func (r RoomID) Valid() bool {
	return strings.HasPrefix(string(r), roomPrefix) && len(r) > len(roomPrefix)
}

// PregnancyID extracts the pregnancy part of the identifier.
// For group rooms the group suffix is stripped.
func (r RoomID) PregnancyID() string {
	rest := strings.TrimPrefix(string(r), roomPrefix)
	if idx := strings.IndexByte(rest, '-'); idx > 0 {
		return rest[:idx]
	}
	return rest
}
