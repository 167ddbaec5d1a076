package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"holdem-casino/internal/game"
	"holdem-casino/internal/room"
)

var (
	ErrAlreadyInRoom   = errors.New("already_in_room")
	ErrNotInRoom       = errors.New("not_in_room")
	ErrRoomNotFound    = errors.New("room_not_found")
	ErrBuyInOutOfRange = errors.New("buy_in_out_of_range")
)

// Conn is one player's outbound pipe. Implementations must not block the
// caller.
type Conn interface {
	Send(msg any)
}

// ErrorMessage is the generic wire-level failure notice.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// RoomInfoStore keeps the lobby's per-room occupancy current.
type RoomInfoStore interface {
	SetPlayerCount(ctx context.Context, roomID string, count int) error
}

// RoomSpec describes one room to bring up: table rules plus the buy-in
// window enforced at the door.
type RoomSpec struct {
	RoomID   string
	Config   game.TableConfig
	MinBuyIn int64
	MaxBuyIn int64
}

type roomEntry struct {
	actor    *room.Actor
	spec     RoomSpec
	occupied int
}

// Hub is the registry of live rooms and the router between connections
// and room actors. It is the Sink every actor dispatches through.
type Hub struct {
	accounts room.Accounts
	info     RoomInfoStore
	log      zerolog.Logger
	opts     room.Options

	mu      sync.RWMutex
	rooms   map[string]*roomEntry
	players map[string]string // playerID -> roomID
	conns   map[string]Conn
}

func New(accounts room.Accounts, info RoomInfoStore, logger zerolog.Logger, opts room.Options) *Hub {
	return &Hub{
		accounts: accounts,
		info:     info,
		log:      logger,
		opts:     opts,
		rooms:    map[string]*roomEntry{},
		players:  map[string]string{},
		conns:    map[string]Conn{},
	}
}

// AddRoom brings a room actor up. Called at startup for every room_info
// row.
func (h *Hub) AddRoom(spec RoomSpec) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[spec.RoomID]; ok {
		return
	}
	actor := room.New(spec.RoomID, spec.Config, h, h.accounts, h.log, h.opts)
	h.rooms[spec.RoomID] = &roomEntry{actor: actor, spec: spec}
}

// Rooms lists the live room IDs.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		out = append(out, id)
	}
	return out
}

// Register binds a connection to a player. A previous connection for the
// same player is superseded; if the player sits in a room the seat is
// marked reconnected.
func (h *Hub) Register(playerID string, conn Conn) {
	h.mu.Lock()
	h.conns[playerID] = conn
	entry := h.entryFor(playerID)
	h.mu.Unlock()
	if entry != nil {
		entry.actor.Reconnect(playerID)
	}
}

// Unregister drops the player's connection. A seated player's seat plays
// on under the turn clock and departs after the hand.
func (h *Hub) Unregister(playerID string, conn Conn) {
	h.mu.Lock()
	if h.conns[playerID] != conn {
		h.mu.Unlock()
		return
	}
	delete(h.conns, playerID)
	entry := h.entryFor(playerID)
	h.mu.Unlock()
	if entry != nil {
		entry.actor.Disconnect(playerID)
	}
}

// JoinRoom seats the player, enforcing the one-room-per-player rule and
// the room's buy-in window.
func (h *Hub) JoinRoom(ctx context.Context, playerID, name, roomID string, buyIn int64) error {
	h.mu.Lock()
	if _, ok := h.players[playerID]; ok {
		h.mu.Unlock()
		return ErrAlreadyInRoom
	}
	entry, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return ErrRoomNotFound
	}
	if buyIn < entry.spec.MinBuyIn || buyIn > entry.spec.MaxBuyIn {
		h.mu.Unlock()
		return ErrBuyInOutOfRange
	}
	// Reserve the membership before the blocking join so a concurrent
	// second join cannot slip in.
	h.players[playerID] = roomID
	h.mu.Unlock()

	if err := entry.actor.Join(playerID, name, buyIn); err != nil {
		h.mu.Lock()
		delete(h.players, playerID)
		h.mu.Unlock()
		return err
	}

	h.mu.Lock()
	entry.occupied++
	count := entry.occupied
	h.mu.Unlock()
	h.refreshCount(ctx, roomID, count)
	return nil
}

func (h *Hub) LeaveRoom(playerID string) error {
	entry := h.lookup(playerID)
	if entry == nil {
		return ErrNotInRoom
	}
	return entry.actor.Leave(playerID)
}

func (h *Hub) SetReady(playerID string, ready bool) error {
	entry := h.lookup(playerID)
	if entry == nil {
		return ErrNotInRoom
	}
	entry.actor.SetReady(playerID, ready)
	return nil
}

func (h *Hub) Action(playerID string, action game.Action) error {
	entry := h.lookup(playerID)
	if entry == nil {
		return ErrNotInRoom
	}
	return entry.actor.Act(playerID, action)
}

// Shutdown stops every room, cashing all seats out.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	entries := make([]*roomEntry, 0, len(h.rooms))
	for _, e := range h.rooms {
		entries = append(entries, e)
	}
	h.mu.Unlock()
	for _, e := range entries {
		e.actor.Stop()
	}
}

func (h *Hub) lookup(playerID string) *roomEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.entryFor(playerID)
}

// entryFor requires h.mu held.
func (h *Hub) entryFor(playerID string) *roomEntry {
	roomID, ok := h.players[playerID]
	if !ok {
		return nil
	}
	return h.rooms[roomID]
}

func (h *Hub) refreshCount(ctx context.Context, roomID string, count int) {
	if h.info == nil {
		return
	}
	if err := h.info.SetPlayerCount(ctx, roomID, count); err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("room_info_refresh_failed")
	}
}

// SendState implements room.Sink.
func (h *Hub) SendState(playerID string, state game.RoomState) {
	if conn := h.conn(playerID); conn != nil {
		conn.Send(state)
	}
}

// SendMessage implements room.Sink.
func (h *Hub) SendMessage(playerID string, msg any) {
	if conn := h.conn(playerID); conn != nil {
		conn.Send(msg)
	}
}

// Detach implements room.Sink: the actor reports the player's membership
// is over, cleanly or because the room went down.
func (h *Hub) Detach(playerID string, cause error) {
	h.mu.Lock()
	roomID, ok := h.players[playerID]
	delete(h.players, playerID)
	conn := h.conns[playerID]
	var count int
	var entry *roomEntry
	if ok {
		if entry = h.rooms[roomID]; entry != nil {
			entry.occupied--
			count = entry.occupied
		}
	}
	h.mu.Unlock()

	if cause != nil && conn != nil {
		conn.Send(ErrorMessage{Type: "error", Code: cause.Error(), Message: "room closed"})
	}
	if entry != nil {
		h.refreshCount(context.Background(), roomID, count)
	}
}

func (h *Hub) conn(playerID string) Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[playerID]
}
