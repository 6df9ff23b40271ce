// Package runtime handles connection admission, room fan-out, inbound
// routing and background upkeep. It orchestrates the system without
// containing engagement logic or scoring rules.
package runtime

import (
	"sync"
	"time"

	"bumpfeed/contract"
	"bumpfeed/domain"
)

type Set map[domain.ConnectionID]struct{}

// Registry owns the live sessions and the room membership sets. A
// connection's sink is managed in a single place even when the
// connection sits in several rooms.
type Registry struct {
	mu          sync.RWMutex
	connections map[domain.ConnectionID]*domain.Connection
	sinks       map[domain.ConnectionID]contract.EventSink
	roomMembers map[domain.RoomID]Set
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[domain.ConnectionID]*domain.Connection),
		sinks:       make(map[domain.ConnectionID]contract.EventSink),
		roomMembers: make(map[domain.RoomID]Set),
	}
}

// Admit registers an authenticated connection and its write side.
func (r *Registry) Admit(conn *domain.Connection, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID] = conn
	r.sinks[conn.ID] = sink
}

// Remove drops the connection from the registry and from every room it
// joined. It returns the removed connection and the rooms it was in so
// the caller can broadcast presence departures. Empty room sets are
// deleted to prevent the membership map growing forever.
func (r *Registry) Remove(id domain.ConnectionID) (*domain.Connection, []domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[id]
	if !ok {
		return nil, nil
	}
	delete(r.connections, id)
	delete(r.sinks, id)

	var rooms []domain.RoomID
	for roomID := range conn.Rooms {
		members, exists := r.roomMembers[roomID]
		if !exists {
			continue
		}
		delete(members, id)
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
		rooms = append(rooms, roomID)
	}
	return conn, rooms
}

// Heartbeat refreshes the connection's liveness timestamp.
func (r *Registry) Heartbeat(id domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[id]
	if !ok {
		return false
	}
	conn.LastHeartbeat = time.Now()
	return true
}

// ListStale returns connections whose last heartbeat is older than the
// timeout. The cleanup worker disconnects them.
func (r *Registry) ListStale(timeout time.Duration) []domain.ConnectionID {
	now := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stale []domain.ConnectionID
	for id, conn := range r.connections {
		if conn.Stale(now, timeout) {
			stale = append(stale, id)
		}
	}
	return stale
}

// Subscribe adds the connection to a room's membership set. It reports
// false for unknown connections so the caller can reject the join.
func (r *Registry) Subscribe(id domain.ConnectionID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[id]
	if !ok {
		return false
	}
	if _, exists := r.roomMembers[roomID]; !exists {
		r.roomMembers[roomID] = make(Set)
	}
	r.roomMembers[roomID][id] = struct{}{}
	conn.Rooms[roomID] = struct{}{}
	return true
}

// Unsubscribe removes the connection from one room without touching its
// session.
func (r *Registry) Unsubscribe(id domain.ConnectionID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.connections[id]; ok {
		delete(conn.Rooms, roomID)
	}
	if members, ok := r.roomMembers[roomID]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
	}
}

// Members lists the connection ids currently subscribed to a room.
func (r *Registry) Members(roomID domain.RoomID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	ids := make([]domain.ConnectionID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// OnlineUsers lists the distinct user ids with an active connection in
// the room. Activity is read under the lock so a concurrent
// MarkInactive never races the snapshot.
func (r *Registry) OnlineUsers(roomID domain.RoomID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(members))
	online := make([]string, 0, len(members))
	for id := range members {
		conn, live := r.connections[id]
		if !live || !conn.Active {
			continue
		}
		if _, dup := seen[conn.UserID]; dup {
			continue
		}
		seen[conn.UserID] = struct{}{}
		online = append(online, conn.UserID)
	}
	return online
}

// SinksForRoom resolves the room's membership into live sinks in a
// two-step lookup, skipping inactive connections and the excluded
// origin. Returns nil if the room has no members.
func (r *Registry) SinksForRoom(roomID domain.RoomID, exclude domain.ConnectionID) map[domain.ConnectionID]contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	sinks := make(map[domain.ConnectionID]contract.EventSink, len(members))
	for id := range members {
		if id == exclude {
			continue
		}
		conn, live := r.connections[id]
		if !live || !conn.Active {
			continue
		}
		if sink, exists := r.sinks[id]; exists {
			sinks[id] = sink
		}
	}
	return sinks
}

// Sink returns the write side of one connection.
func (r *Registry) Sink(id domain.ConnectionID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sinks[id]
	return sink, ok
}

// Connection returns a copy-safe pointer to the live session.
func (r *Registry) Connection(id domain.ConnectionID) (*domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[id]
	return conn, ok
}

// MarkInactive flags a connection whose sink stopped accepting events.
// The cleanup worker reaps it later; marking is cheaper than a full
// removal inside a broadcast.
func (r *Registry) MarkInactive(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[id]; ok {
		conn.Active = false
	}
}

// ConnectionIDs lists every live session id, roomed or not.
func (r *Registry) ConnectionIDs() []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]domain.ConnectionID, 0, len(r.connections))
	for id := range r.connections {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roomMembers)
}
