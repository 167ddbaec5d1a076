package room

import (
	"context"
	"errors"

	"github.com/coder/quartz"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"holdem-casino/internal/game"
)

var (
	ErrRoomClosed = errors.New("room_closed")
	ErrRoomBusy   = errors.New("room_busy")
)

const mailboxLimit = 64

// Sink is the router side of a room: per-player outbound delivery and
// membership teardown. Implementations must not block.
type Sink interface {
	SendState(playerID string, state game.RoomState)
	SendMessage(playerID string, msg any)
	// Detach ends the player's room membership. A non-nil cause is
	// reported to the client before the connection-side cleanup.
	Detach(playerID string, cause error)
}

// Accounts moves chips between table stacks and durable balances.
type Accounts interface {
	OnJoin(ctx context.Context, playerID, roomID string, buyIn int64) error
	OnLeave(ctx context.Context, playerID, roomID string, stack int64) error
	ApplySettlement(ctx context.Context, handID, playerID string, delta int64) error
}

// ActionResult acknowledges a player action on the wire.
type ActionResult struct {
	Type     string `json:"type"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// Options carries the injectable pieces of an actor. Zero values mean
// production defaults: real clock, crypto-seeded decks, ULID hand IDs.
type Options struct {
	Clock     quartz.Clock
	NewDeck   func() *game.Deck
	NewHandID func() string
}

// Actor owns one table. A single goroutine applies mailbox events in
// order, so nothing else ever touches the table.
type Actor struct {
	roomID   string
	table    *game.Table
	clock    quartz.Clock
	sink     Sink
	accounts Accounts
	log      zerolog.Logger

	mailbox *mailbox
	done    chan struct{}

	turnNonce uint64
	turnTimer *quartz.Timer

	newDeck   func() *game.Deck
	newHandID func() string
}

func New(roomID string, cfg game.TableConfig, sink Sink, accounts Accounts, logger zerolog.Logger, opts Options) *Actor {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.NewDeck == nil {
		opts.NewDeck = game.NewHandDeck
	}
	if opts.NewHandID == nil {
		opts.NewHandID = func() string { return ulid.Make().String() }
	}
	a := &Actor{
		roomID:    roomID,
		table:     game.NewTable(roomID, cfg),
		clock:     opts.Clock,
		sink:      sink,
		accounts:  accounts,
		log:       logger.With().Str("room_id", roomID).Logger(),
		mailbox:   newMailbox(mailboxLimit),
		done:      make(chan struct{}),
		newDeck:   opts.NewDeck,
		newHandID: opts.NewHandID,
	}
	go a.run()
	return a
}

func (a *Actor) RoomID() string { return a.roomID }

// Done closes when the actor goroutine has exited.
func (a *Actor) Done() <-chan struct{} { return a.done }

// Join seats a player, debiting their buy-in from the durable balance.
func (a *Actor) Join(playerID, name string, buyIn int64) error {
	reply := make(chan error, 1)
	if err := a.mailbox.put(joinEvent{playerID: playerID, name: name, buyIn: buyIn, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// Leave removes the player's seat, crediting the remaining stack back. A
// seat dealt into a running hand keeps playing and departs at hand end.
func (a *Actor) Leave(playerID string) error {
	reply := make(chan error, 1)
	if err := a.mailbox.put(leaveEvent{playerID: playerID, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

func (a *Actor) Disconnect(playerID string) {
	_ = a.mailbox.put(disconnectEvent{playerID: playerID})
}

func (a *Actor) Reconnect(playerID string) {
	_ = a.mailbox.put(reconnectEvent{playerID: playerID})
}

func (a *Actor) SetReady(playerID string, ready bool) {
	_ = a.mailbox.put(readyEvent{playerID: playerID, ready: ready})
}

// Act queues a player action. Blocks rather than drops when the room is
// saturated.
func (a *Actor) Act(playerID string, action game.Action) error {
	return a.mailbox.put(actionEvent{playerID: playerID, action: action})
}

// Stop shuts the room down, cashing every seat out. Safe to call more
// than once.
func (a *Actor) Stop() {
	_ = a.mailbox.put(stopEvent{})
	<-a.done
}

func (a *Actor) run() {
	defer close(a.done)
	for {
		ev, ok := a.mailbox.take()
		if !ok {
			return
		}
		if stop := a.handle(ev); stop {
			return
		}
	}
}

func (a *Actor) handle(ev event) bool {
	ctx := context.Background()
	switch e := ev.(type) {
	case joinEvent:
		e.reply <- a.join(ctx, e)
	case leaveEvent:
		e.reply <- a.leave(ctx, e.playerID)
	case disconnectEvent:
		a.table.SetConnected(e.playerID, false)
		a.broadcastState()
	case reconnectEvent:
		if a.table.Reconnect(e.playerID) {
			a.broadcastState()
		}
	case readyEvent:
		if err := a.table.SetReady(e.playerID, e.ready); err != nil {
			return false
		}
		a.broadcastState()
		if a.table.Stage == game.StageNotEnoughPlayers && a.table.CanStartHand() {
			return a.startHand(ctx)
		}
	case actionEvent:
		return a.action(ctx, e)
	case timeoutEvent:
		return a.timeout(ctx, e.nonce)
	case tickEvent:
		return a.tick(ctx)
	case stopEvent:
		a.shutdown(ctx, nil)
		return true
	}
	return false
}

func (a *Actor) join(ctx context.Context, e joinEvent) error {
	if err := a.accounts.OnJoin(ctx, e.playerID, a.roomID, e.buyIn); err != nil {
		return err
	}
	if err := a.table.AddSeat(e.playerID, e.name, e.buyIn); err != nil {
		if lerr := a.accounts.OnLeave(ctx, e.playerID, a.roomID, e.buyIn); lerr != nil {
			a.log.Error().Err(lerr).Str("player_id", e.playerID).Msg("buyin_refund_failed")
		}
		return err
	}
	a.log.Info().Str("player_id", e.playerID).Int64("buy_in", e.buyIn).Msg("player_joined")
	a.broadcastState()
	return nil
}

func (a *Actor) leave(ctx context.Context, playerID string) error {
	dep, err := a.table.MarkLeave(playerID)
	if err != nil {
		return err
	}
	if dep != nil {
		a.depart(ctx, *dep, nil)
	}
	a.broadcastState()
	return nil
}

func (a *Actor) depart(ctx context.Context, dep game.Departure, cause error) {
	if err := a.accounts.OnLeave(ctx, dep.PlayerID, a.roomID, dep.Stack); err != nil {
		a.log.Error().Err(err).Str("player_id", dep.PlayerID).Msg("cashout_failed")
	}
	a.sink.Detach(dep.PlayerID, cause)
	a.log.Info().Str("player_id", dep.PlayerID).Int64("stack", dep.Stack).Msg("player_left")
}

func (a *Actor) action(ctx context.Context, e actionEvent) bool {
	effects, err := a.table.Apply(e.playerID, e.action)
	if err != nil {
		a.sink.SendMessage(e.playerID, ActionResult{Type: "action_result", Accepted: false, Error: errorCode(err)})
		return false
	}
	a.sink.SendMessage(e.playerID, ActionResult{Type: "action_result", Accepted: true})
	a.log.Info().
		Str("player_id", e.playerID).
		Str("action", string(e.action.Kind)).
		Int64("amount", e.action.Amount).
		Msg("action_applied")
	return a.finish(ctx, effects)
}

func (a *Actor) timeout(ctx context.Context, nonce uint64) bool {
	if nonce != a.turnNonce {
		return false
	}
	playerID, ok := a.table.CurrentTurn()
	if !ok {
		return false
	}
	effects, err := a.table.ApplyTimeout(playerID)
	if err != nil {
		a.quarantine(ctx, err)
		return true
	}
	a.log.Info().Str("player_id", playerID).Msg("turn_timeout")
	return a.finish(ctx, effects)
}

// tick fires after the hand gap: clear the finished hand and deal the
// next one.
func (a *Actor) tick(ctx context.Context) bool {
	for _, dep := range a.table.Reseat() {
		a.depart(ctx, dep, nil)
	}
	return a.startHand(ctx)
}

func (a *Actor) startHand(ctx context.Context) bool {
	handID := a.newHandID()
	effects, err := a.table.StartHand(handID, a.newDeck())
	if err != nil {
		a.quarantine(ctx, err)
		return true
	}
	if a.table.Stage != game.StageNotEnoughPlayers {
		a.log.Info().Str("hand_id", handID).Int("seats", len(a.table.Seats)).Msg("hand_start")
	}
	return a.finish(ctx, effects)
}

// finish runs the invariant check and dispatches what the table emitted.
// A table that fails validation can no longer be trusted and the room
// goes down with it.
func (a *Actor) finish(ctx context.Context, effects []game.Effect) bool {
	if err := a.table.Validate(); err != nil {
		a.quarantine(ctx, err)
		return true
	}
	a.armTurnTimer()
	a.dispatch(ctx, effects)
	return false
}

func (a *Actor) dispatch(ctx context.Context, effects []game.Effect) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case game.EffectBroadcastState:
			a.broadcastState()
		case game.EffectBroadcastMessage:
			for _, s := range a.table.Seats {
				a.sink.SendMessage(s.PlayerID, e.Message)
			}
		case game.EffectDirect:
			a.sink.SendMessage(e.PlayerID, e.Message)
		case game.EffectSettle:
			a.settle(ctx, e)
		}
	}
}

func (a *Actor) settle(ctx context.Context, e game.EffectSettle) {
	for playerID, delta := range e.Deltas {
		if err := a.accounts.ApplySettlement(ctx, e.HandID, playerID, delta); err != nil {
			a.log.Error().Err(err).
				Str("hand_id", e.HandID).
				Str("player_id", playerID).
				Int64("delta", delta).
				Msg("settlement_failed")
		}
	}
	a.log.Info().Str("hand_id", e.HandID).Msg("hand_end")
	a.clock.AfterFunc(a.table.Config().HandGap, func() {
		_ = a.mailbox.put(tickEvent{})
	})
}

// armTurnTimer points the turn clock at whoever acts next. Bumping the
// nonce first makes any timer already in flight a no-op.
func (a *Actor) armTurnTimer() {
	a.turnNonce++
	if a.turnTimer != nil {
		a.turnTimer.Stop()
		a.turnTimer = nil
	}
	if _, ok := a.table.CurrentTurn(); !ok {
		return
	}
	nonce := a.turnNonce
	a.turnTimer = a.clock.AfterFunc(a.table.Config().TurnTime, func() {
		_ = a.mailbox.put(timeoutEvent{nonce: nonce})
	})
}

func (a *Actor) broadcastState() {
	for _, s := range a.table.Seats {
		a.sink.SendState(s.PlayerID, a.table.SnapshotFor(s.PlayerID))
	}
}

func (a *Actor) quarantine(ctx context.Context, cause error) {
	a.log.Error().Err(cause).Str("hand_id", a.table.HandID).Msg("room_quarantined")
	a.shutdown(ctx, ErrRoomClosed)
}

// shutdown cashes every seat out and stops the actor. A hand that cannot
// settle returns every chip it collected.
func (a *Actor) shutdown(ctx context.Context, cause error) {
	if a.turnTimer != nil {
		a.turnTimer.Stop()
	}
	a.mailbox.close()
	for _, s := range a.table.Seats {
		stack := s.Stack
		if a.table.Stage != game.StageShowdown {
			stack += s.Contrib
		}
		a.depart(ctx, game.Departure{PlayerID: s.PlayerID, Stack: stack}, cause)
	}
	a.table.Seats = nil
	a.log.Info().Msg("room_stopped")
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, game.ErrNotInHand):
		return "not_in_hand"
	case errors.Is(err, game.ErrNotSeated):
		return "not_seated"
	default:
		return "invalid_action"
	}
}
