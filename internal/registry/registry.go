// Package registry tracks which users own which live connections and which
// rooms each connection has joined.
//
// All state lives behind a single mutex. Reads hand out copies, so callers may
// iterate a room's members while other goroutines register, join or leave.
package registry

import (
	"sync"

	"github.com/samber/lo"
)

// ConnectionID identifies one live transport session for the lifetime of the process.
type ConnectionID string

// UserID is the stable identifier of an authenticated user.
type UserID string

// RoomID names a broadcast scope.
type RoomID string

// ChannelRoom returns the room that carries a channel's events.
func ChannelRoom(channelID string) RoomID {
	return RoomID("channel:" + channelID)
}

// UserRoom returns the implicit personal room of a user.
func UserRoom(userID UserID) RoomID {
	return RoomID("user:" + string(userID))
}

// Change reports the effect of Register or Unregister on a user's presence.
// Transition is true only when the user went from zero to one live
// connection (Register) or from one to zero (Unregister). Seq orders
// transitions across the whole registry.
type Change struct {
	UserID     UserID
	Transition bool
	Seq        uint64
}

type set[T comparable] map[T]struct{}

// Registry is the in-memory connection routing table.
type Registry struct {
	mu  sync.RWMutex
	seq uint64

	connectionsByUser map[UserID]set[ConnectionID]
	userByConnection  map[ConnectionID]UserID
	roomsByConnection map[ConnectionID]set[RoomID]
	membersByRoom     map[RoomID]set[ConnectionID]
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		connectionsByUser: make(map[UserID]set[ConnectionID]),
		userByConnection:  make(map[ConnectionID]UserID),
		roomsByConnection: make(map[ConnectionID]set[RoomID]),
		membersByRoom:     make(map[RoomID]set[ConnectionID]),
	}
}

// Register records connID as owned by userID and joins it to the user's
// personal room. Registering a known connection id is a no-op.
func (r *Registry) Register(connID ConnectionID, userID UserID) Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.userByConnection[connID]; ok {
		return Change{UserID: owner}
	}

	conns, ok := r.connectionsByUser[userID]
	if !ok {
		conns = make(set[ConnectionID])
		r.connectionsByUser[userID] = conns
	}
	first := len(conns) == 0
	conns[connID] = struct{}{}
	r.userByConnection[connID] = userID
	r.roomsByConnection[connID] = make(set[RoomID])
	r.joinLocked(connID, UserRoom(userID))

	change := Change{UserID: userID, Transition: first}
	if first {
		r.seq++
		change.Seq = r.seq
	}
	return change
}

// Unregister removes connID from its user and from every room it joined.
// The second result is false when connID was not registered.
func (r *Registry) Unregister(connID ConnectionID) (Change, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.userByConnection[connID]
	if !ok {
		return Change{}, false
	}

	for room := range r.roomsByConnection[connID] {
		r.leaveLocked(connID, room)
	}
	delete(r.roomsByConnection, connID)
	delete(r.userByConnection, connID)

	change := Change{UserID: userID}
	if conns, ok := r.connectionsByUser[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.connectionsByUser, userID)
			r.seq++
			change.Transition = true
			change.Seq = r.seq
		}
	}
	return change, true
}

// Stamp returns a fresh sequence number for a presence change that does not
// come from a connect or disconnect, such as an explicit status update.
func (r *Registry) Stamp() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

// IsOnline reports whether userID owns at least one live connection.
func (r *Registry) IsOnline(userID UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connectionsByUser[userID]
	return ok
}

// ConnectionsOf returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsOf(userID UserID) []ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.connectionsByUser[userID])
}

// UserOf returns the owner of connID.
func (r *Registry) UserOf(connID ConnectionID) (UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.userByConnection[connID]
	return userID, ok
}

// JoinRoom adds roomID to the connection's room set. It returns false when
// the connection is unknown or already in the room.
func (r *Registry) JoinRoom(connID ConnectionID, roomID RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.userByConnection[connID]; !ok {
		return false
	}
	return r.joinLocked(connID, roomID)
}

// LeaveRoom removes roomID from the connection's room set. The personal room
// cannot be left; it goes away with the connection.
func (r *Registry) LeaveRoom(connID ConnectionID, roomID RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.userByConnection[connID]
	if !ok || roomID == UserRoom(userID) {
		return false
	}
	if _, joined := r.roomsByConnection[connID][roomID]; !joined {
		return false
	}
	r.leaveLocked(connID, roomID)
	return true
}

// RoomsOf returns a snapshot of the rooms connID has joined.
func (r *Registry) RoomsOf(connID ConnectionID) []RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.roomsByConnection[connID])
}

// MembersOf returns a snapshot of the connections subscribed to roomID.
func (r *Registry) MembersOf(roomID RoomID) []ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.membersByRoom[roomID])
}

// Recipient pairs a connection with its owner.
type Recipient struct {
	ConnectionID ConnectionID
	UserID       UserID
}

// RecipientsOf is MembersOf with each connection's owner resolved under the
// same lock.
func (r *Registry) RecipientsOf(roomID RoomID) []Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.membersByRoom[roomID]
	out := make([]Recipient, 0, len(members))
	for connID := range members {
		out = append(out, Recipient{ConnectionID: connID, UserID: r.userByConnection[connID]})
	}
	return out
}

// UsersIn returns the distinct users with at least one connection in roomID.
func (r *Registry) UsersIn(roomID RoomID) []UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]UserID, 0, len(r.membersByRoom[roomID]))
	for connID := range r.membersByRoom[roomID] {
		users = append(users, r.userByConnection[connID])
	}
	return lo.Uniq(users)
}

// Connections returns a snapshot of every registered connection.
func (r *Registry) Connections() []ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.userByConnection)
}

// Stats is a point-in-time count of the registry's contents.
type Stats struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
	Rooms       int `json:"rooms"`
}

// Stats returns the current sizes of the registry.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Connections: len(r.userByConnection),
		Users:       len(r.connectionsByUser),
		Rooms:       len(r.membersByRoom),
	}
}

func (r *Registry) joinLocked(connID ConnectionID, roomID RoomID) bool {
	rooms := r.roomsByConnection[connID]
	if _, ok := rooms[roomID]; ok {
		return false
	}
	rooms[roomID] = struct{}{}

	members, ok := r.membersByRoom[roomID]
	if !ok {
		members = make(set[ConnectionID])
		r.membersByRoom[roomID] = members
	}
	members[connID] = struct{}{}
	return true
}

// leaveLocked drops the reverse-index entry and deletes empty rooms so the
// index does not grow with every room ever used.
func (r *Registry) leaveLocked(connID ConnectionID, roomID RoomID) {
	delete(r.roomsByConnection[connID], roomID)
	if members, ok := r.membersByRoom[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.membersByRoom, roomID)
		}
	}
}
