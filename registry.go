package main

import (
	"crypto/subtle"
	"strings"
	"sync"
	"time"
)

// Sink is one reachable recipient. Send must not block; returning false
// means the client is gone and the caller may treat it as detached.
type Sink interface {
	Send(v any) bool
}

// PlayerConnection is a room membership record. It outlives the socket:
// detaching only stamps disconnectedAt, the record itself is removed by an
// explicit RemovePlayer or room teardown.
type PlayerConnection struct {
	ID             string
	Name           string
	ReconnectToken string

	sink           Sink      // nil while detached
	disconnectedAt time.Time // set iff sink is nil
}

func (p *PlayerConnection) Attached() bool {
	return p.sink != nil
}

type Room struct {
	Code      string
	HostToken string
	CreatedAt time.Time

	hostSink Sink
	players  map[string]*PlayerConnection
}

// Registry is the single source of truth for who is in which room and how
// to reach them. It is a mechanical store: join limits and game rules are
// the orchestrator's business.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	reconnectWindow time.Duration
	roomExpiry      time.Duration
	now             func() time.Time
}

func newRegistry(reconnectWindow, roomExpiry time.Duration) *Registry {
	return &Registry{
		rooms:           make(map[string]*Room),
		reconnectWindow: reconnectWindow,
		roomExpiry:      roomExpiry,
		now:             time.Now,
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(code)
}

// CreateRoom mints a fresh room and returns its code and host bearer token.
// Code generation retries on collision, so codes stay unique among live rooms.
func (reg *Registry) CreateRoom() (string, string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	code := newRoomCode()
	for _, exists := reg.rooms[code]; exists; _, exists = reg.rooms[code] {
		code = newRoomCode()
	}

	room := &Room{
		Code:      code,
		HostToken: newToken(),
		CreatedAt: reg.now(),
		players:   make(map[string]*PlayerConnection),
	}
	reg.rooms[code] = room

	return code, room.HostToken
}

func (reg *Registry) ValidateHostToken(code, token string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[normalizeCode(code)]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(room.HostToken), []byte(token)) == 1
}

// AddPlayer registers a membership record with no socket attached yet.
// Returns false if the room does not exist.
func (reg *Registry) AddPlayer(code, name string) (string, string, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[normalizeCode(code)]
	if !ok {
		return "", "", false
	}

	player := &PlayerConnection{
		ID:             newPlayerID(),
		Name:           name,
		ReconnectToken: newToken(),
	}
	room.players[player.ID] = player

	return player.ID, player.ReconnectToken, true
}

// ReconnectPlayer reports whether this playerId/token pair may re-attach,
// with a typed rejection naming the reason when it may not. The window
// boundary is inclusive: elapsed time exactly equal to the window still
// passes.
func (reg *Registry) ReconnectPlayer(code, playerID, token string) *rejection {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[normalizeCode(code)]
	if !ok {
		return reject(codeNotFound, "no such room %q", normalizeCode(code))
	}
	player, ok := room.players[playerID]
	if !ok {
		return reject(codeNotFound, "unknown player")
	}
	if subtle.ConstantTimeCompare([]byte(player.ReconnectToken), []byte(token)) != 1 {
		return reject(codeUnauthorized, "invalid reconnect token")
	}
	if player.sink == nil && !player.disconnectedAt.IsZero() {
		if reg.now().Sub(player.disconnectedAt) > reg.reconnectWindow {
			return reject(codeExpiredReconnect, "the reconnection window has passed")
		}
	}
	return nil
}

func (reg *Registry) AttachHost(code string, s Sink) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[normalizeCode(code)]
	if !ok {
		return false
	}
	room.hostSink = s
	return true
}

func (reg *Registry) DetachHost(code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if room, ok := reg.rooms[normalizeCode(code)]; ok {
		room.hostSink = nil
	}
}

func (reg *Registry) AttachPlayer(code, playerID string, s Sink) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[normalizeCode(code)]
	if !ok {
		return false
	}
	player, ok := room.players[playerID]
	if !ok {
		return false
	}
	player.sink = s
	player.disconnectedAt = time.Time{}
	return true
}

func (reg *Registry) DetachPlayer(code, playerID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[normalizeCode(code)]
	if !ok {
		return
	}
	if player, ok := room.players[playerID]; ok {
		player.sink = nil
		player.disconnectedAt = reg.now()
	}
}

// Player returns a snapshot of one membership record.
func (reg *Registry) Player(code, playerID string) (PlayerConnection, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[normalizeCode(code)]
	if !ok {
		return PlayerConnection{}, false
	}
	player, ok := room.players[playerID]
	if !ok {
		return PlayerConnection{}, false
	}
	return *player, true
}

func (reg *Registry) RoomExists(code string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	_, ok := reg.rooms[normalizeCode(code)]
	return ok
}

func (reg *Registry) RemovePlayer(code, playerID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if room, ok := reg.rooms[normalizeCode(code)]; ok {
		delete(room.players, playerID)
	}
}

func (reg *Registry) RemoveRoom(code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delete(reg.rooms, normalizeCode(code))
}

// BroadcastTargets enumerates the currently reachable recipients of a room.
// The host sink may be nil.
func (reg *Registry) BroadcastTargets(code string) (Sink, map[string]Sink) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[normalizeCode(code)]
	if !ok {
		return nil, nil
	}

	players := make(map[string]Sink, len(room.players))
	for id, p := range room.players {
		if p.sink != nil {
			players[id] = p.sink
		}
	}
	return room.hostSink, players
}

// ReapExpiredRooms deletes rooms that have had no host connection and are
// older than the expiry. Returns the reaped codes. Racing a host that
// reconnects just past expiry is an accepted loss.
func (reg *Registry) ReapExpiredRooms(now time.Time) []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var reaped []string
	for code, room := range reg.rooms {
		if room.hostSink == nil && now.Sub(room.CreatedAt) > reg.roomExpiry {
			delete(reg.rooms, code)
			reaped = append(reaped, code)
		}
	}
	return reaped
}
