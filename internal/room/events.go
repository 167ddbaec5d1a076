package room

import "holdem-casino/internal/game"

// event is one unit of room work. Droppable events may be shed under
// mailbox pressure; the rest either carry player intent or keep the hand
// clock moving and must survive.
type event interface {
	droppable() bool
}

type joinEvent struct {
	playerID string
	name     string
	buyIn    int64
	reply    chan error
}

type leaveEvent struct {
	playerID string
	reply    chan error
}

type disconnectEvent struct{ playerID string }

type reconnectEvent struct{ playerID string }

type readyEvent struct {
	playerID string
	ready    bool
}

type actionEvent struct {
	playerID string
	action   game.Action
}

type timeoutEvent struct{ nonce uint64 }

type tickEvent struct{}

type stopEvent struct{}

func (joinEvent) droppable() bool       { return true }
func (leaveEvent) droppable() bool      { return true }
func (disconnectEvent) droppable() bool { return true }
func (reconnectEvent) droppable() bool  { return true }
func (readyEvent) droppable() bool      { return true }
func (actionEvent) droppable() bool     { return false }
func (timeoutEvent) droppable() bool    { return false }
func (tickEvent) droppable() bool       { return false }
func (stopEvent) droppable() bool       { return false }
