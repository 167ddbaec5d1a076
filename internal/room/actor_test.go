package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdem-casino/internal/game"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func testCfg() game.TableConfig {
	return game.TableConfig{
		SmallBlind: 1,
		BigBlind:   2,
		MaxSeats:   6,
		TurnTime:   10 * time.Second,
		HandGap:    3 * time.Second,
	}
}

func seededDecks(seed int64) func() *game.Deck {
	return func() *game.Deck {
		return game.NewDeck(rand.New(rand.NewSource(seed)))
	}
}

func handIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("hand-%d", n)
	}
}

type fakeSink struct {
	mu       sync.Mutex
	states   map[string][]game.RoomState
	msgs     map[string][]any
	detached map[string]error
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		states:   map[string][]game.RoomState{},
		msgs:     map[string][]any{},
		detached: map[string]error{},
	}
}

func (f *fakeSink) SendState(playerID string, state game.RoomState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[playerID] = append(f.states[playerID], state)
}

func (f *fakeSink) SendMessage(playerID string, msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[playerID] = append(f.msgs[playerID], msg)
}

func (f *fakeSink) Detach(playerID string, cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached[playerID] = cause
}

func (f *fakeSink) last(playerID string) (game.RoomState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	states := f.states[playerID]
	if len(states) == 0 {
		return game.RoomState{}, false
	}
	return states[len(states)-1], true
}

func (f *fakeSink) lastStage(playerID string) string {
	state, ok := f.last(playerID)
	if !ok {
		return ""
	}
	return state.Stage
}

func (f *fakeSink) lastResult(playerID string) (ActionResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.msgs[playerID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if r, ok := msgs[i].(ActionResult); ok {
			return r, true
		}
	}
	return ActionResult{}, false
}

func (f *fakeSink) handResults(playerID string) []game.HandResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []game.HandResult
	for _, m := range f.msgs[playerID] {
		if r, ok := m.(game.HandResult); ok {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeSink) isDetached(playerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.detached[playerID]
	return ok
}

type fakeAccounts struct {
	mu      sync.Mutex
	joins   map[string]int64
	leaves  map[string]int64
	settled map[string]int64
	joinErr error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		joins:   map[string]int64{},
		leaves:  map[string]int64{},
		settled: map[string]int64{},
	}
}

func (f *fakeAccounts) OnJoin(_ context.Context, playerID, _ string, buyIn int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joins[playerID] += buyIn
	return nil
}

func (f *fakeAccounts) OnLeave(_ context.Context, playerID, _ string, stack int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves[playerID] += stack
	return nil
}

func (f *fakeAccounts) ApplySettlement(_ context.Context, handID, playerID string, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled[handID+"/"+playerID] = delta
	return nil
}

func (f *fakeAccounts) left(playerID string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.leaves[playerID]
	return v, ok
}

func (f *fakeAccounts) settlement(handID, playerID string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.settled[handID+"/"+playerID]
	return v, ok
}

func newTestActor(t *testing.T, cfg game.TableConfig) (*Actor, *fakeSink, *fakeAccounts, *quartz.Mock) {
	t.Helper()
	mockClock := quartz.NewMock(t)
	sink := newFakeSink()
	acct := newFakeAccounts()
	a := New("room-1", cfg, sink, acct, zerolog.Nop(), Options{
		Clock:     mockClock,
		NewDeck:   seededDecks(1),
		NewHandID: handIDs(),
	})
	t.Cleanup(a.Stop)
	return a, sink, acct, mockClock
}

// seatTwo joins A and B and readies both, then waits for the deal. A is
// the button and small blind heads-up, so A acts first pre-flop.
func seatTwo(t *testing.T, a *Actor, sink *fakeSink) {
	t.Helper()
	require.NoError(t, a.Join("A", "Alice", 100))
	require.NoError(t, a.Join("B", "Bob", 100))
	a.SetReady("A", true)
	a.SetReady("B", true)
	require.Eventually(t, func() bool {
		return sink.lastStage("A") == string(game.StagePreFlop)
	}, waitFor, tick)
}

func TestJoinAndReadyStartsHand(t *testing.T) {
	a, sink, acct, _ := newTestActor(t, testCfg())
	seatTwo(t, a, sink)

	state, ok := sink.last("A")
	require.True(t, ok)
	assert.Equal(t, "A", state.CurrentActor)
	assert.Equal(t, "hand-1", state.HandID)
	assert.Equal(t, int64(3), state.Pot)

	acct.mu.Lock()
	defer acct.mu.Unlock()
	assert.Equal(t, int64(100), acct.joins["A"])
	assert.Equal(t, int64(100), acct.joins["B"])
}

func TestJoinRoomFullRefundsBuyIn(t *testing.T) {
	cfg := testCfg()
	cfg.MaxSeats = 2
	a, _, acct, _ := newTestActor(t, cfg)

	require.NoError(t, a.Join("A", "Alice", 100))
	require.NoError(t, a.Join("B", "Bob", 100))
	err := a.Join("C", "Carol", 50)
	require.ErrorIs(t, err, game.ErrRoomFull)

	refund, ok := acct.left("C")
	require.True(t, ok)
	assert.Equal(t, int64(50), refund)
}

func TestJoinDebitFailureRejects(t *testing.T) {
	a, _, acct, _ := newTestActor(t, testCfg())
	wantErr := errors.New("insufficient_balance")
	acct.mu.Lock()
	acct.joinErr = wantErr
	acct.mu.Unlock()

	err := a.Join("A", "Alice", 100)
	require.ErrorIs(t, err, wantErr)
	assert.Empty(t, a.table.Seats)
}

func TestActionOutOfTurnRejected(t *testing.T) {
	a, sink, _, _ := newTestActor(t, testCfg())
	seatTwo(t, a, sink)

	require.NoError(t, a.Act("B", game.Action{Kind: game.ActionFold}))
	require.Eventually(t, func() bool {
		r, ok := sink.lastResult("B")
		return ok && !r.Accepted
	}, waitFor, tick)
	r, _ := sink.lastResult("B")
	assert.Equal(t, "not_your_turn", r.Error)
}

func TestTurnTimeoutFoldsFacingBet(t *testing.T) {
	ctx := context.Background()
	a, sink, acct, mockClock := newTestActor(t, testCfg())
	seatTwo(t, a, sink)

	// A owes one chip to the big blind, so the timeout folds rather than
	// checks.
	mockClock.Advance(testCfg().TurnTime).MustWait(ctx)

	require.Eventually(t, func() bool {
		return len(sink.handResults("B")) == 1
	}, waitFor, tick)
	result := sink.handResults("B")[0]
	require.Len(t, result.Winners, 1)
	assert.Equal(t, "B", result.Winners[0].PlayerID)
	assert.Equal(t, int64(3), result.Winners[0].Amount)
	assert.Empty(t, result.Winners[0].Hand)

	delta, ok := acct.settlement("hand-1", "B")
	require.True(t, ok)
	assert.Equal(t, int64(1), delta)
	delta, ok = acct.settlement("hand-1", "A")
	require.True(t, ok)
	assert.Equal(t, int64(-1), delta)
}

func TestNextHandDealsAfterGap(t *testing.T) {
	ctx := context.Background()
	a, sink, _, mockClock := newTestActor(t, testCfg())
	seatTwo(t, a, sink)

	require.NoError(t, a.Act("A", game.Action{Kind: game.ActionFold}))
	require.Eventually(t, func() bool {
		return len(sink.handResults("A")) == 1
	}, waitFor, tick)

	mockClock.Advance(testCfg().HandGap).MustWait(ctx)
	require.Eventually(t, func() bool {
		state, ok := sink.last("A")
		return ok && state.HandID == "hand-2" && state.Stage == string(game.StagePreFlop)
	}, waitFor, tick)

	state, _ := sink.last("A")
	for _, s := range state.Seats {
		switch s.PlayerID {
		case "A":
			assert.Equal(t, int64(99)-s.RoundBet, s.Stack)
		case "B":
			assert.Equal(t, int64(101)-s.RoundBet, s.Stack)
		}
	}
}

func TestTimerFollowsTurn(t *testing.T) {
	ctx := context.Background()
	a, sink, _, mockClock := newTestActor(t, testCfg())
	seatTwo(t, a, sink)

	require.NoError(t, a.Act("A", game.Action{Kind: game.ActionCall}))
	require.Eventually(t, func() bool {
		state, ok := sink.last("B")
		return ok && state.CurrentActor == "B"
	}, waitFor, tick)

	// The clock now belongs to B's big blind option. Nothing is owed, so
	// the timeout checks and the flop comes down with both players live.
	mockClock.Advance(testCfg().TurnTime).MustWait(ctx)
	require.Eventually(t, func() bool {
		return sink.lastStage("A") == string(game.StageFlop)
	}, waitFor, tick)

	state, _ := sink.last("A")
	for _, s := range state.Seats {
		assert.Equal(t, string(game.StatusInHand), s.Status)
	}
}

func TestStaleTimeoutIgnored(t *testing.T) {
	a, sink, _, _ := newTestActor(t, testCfg())
	seatTwo(t, a, sink)

	require.NoError(t, a.mailbox.put(timeoutEvent{nonce: 0}))
	// A failed lookup round-trips through the mailbox, fencing the stale
	// timeout behind it.
	require.ErrorIs(t, a.Leave("nobody"), game.ErrNotSeated)

	state, ok := sink.last("A")
	require.True(t, ok)
	assert.Equal(t, string(game.StagePreFlop), state.Stage)
	assert.Equal(t, "A", state.CurrentActor)
	for _, s := range state.Seats {
		assert.NotEqual(t, string(game.StatusFolded), s.Status)
	}
}

func TestLeaveBetweenHandsCashesOut(t *testing.T) {
	a, sink, acct, _ := newTestActor(t, testCfg())
	require.NoError(t, a.Join("A", "Alice", 100))
	require.NoError(t, a.Join("B", "Bob", 100))

	require.NoError(t, a.Leave("A"))
	stack, ok := acct.left("A")
	require.True(t, ok)
	assert.Equal(t, int64(100), stack)
	assert.True(t, sink.isDetached("A"))

	state, ok := sink.last("B")
	require.True(t, ok)
	require.Len(t, state.Seats, 1)
	assert.Equal(t, "B", state.Seats[0].PlayerID)
}

func TestLeaveMidHandDeferredToHandEnd(t *testing.T) {
	ctx := context.Background()
	a, sink, acct, mockClock := newTestActor(t, testCfg())
	seatTwo(t, a, sink)

	require.NoError(t, a.Leave("B"))
	_, gone := acct.left("B")
	assert.False(t, gone)

	require.NoError(t, a.Act("A", game.Action{Kind: game.ActionFold}))
	require.Eventually(t, func() bool {
		return len(sink.handResults("A")) == 1
	}, waitFor, tick)

	mockClock.Advance(testCfg().HandGap).MustWait(ctx)
	require.Eventually(t, func() bool {
		stack, ok := acct.left("B")
		return ok && stack == 101
	}, waitFor, tick)
	assert.True(t, sink.isDetached("B"))
}

func TestDisconnectedSeatDepartsAfterHand(t *testing.T) {
	ctx := context.Background()
	a, sink, acct, mockClock := newTestActor(t, testCfg())
	seatTwo(t, a, sink)

	a.Disconnect("B")
	require.NoError(t, a.Act("A", game.Action{Kind: game.ActionFold}))
	require.Eventually(t, func() bool {
		return len(sink.handResults("A")) == 1
	}, waitFor, tick)

	mockClock.Advance(testCfg().HandGap).MustWait(ctx)
	require.Eventually(t, func() bool {
		stack, ok := acct.left("B")
		return ok && stack == 101
	}, waitFor, tick)
}

func TestReconnectKeepsSeat(t *testing.T) {
	ctx := context.Background()
	a, sink, acct, mockClock := newTestActor(t, testCfg())
	seatTwo(t, a, sink)

	a.Disconnect("B")
	a.Reconnect("B")
	require.NoError(t, a.Act("A", game.Action{Kind: game.ActionFold}))
	require.Eventually(t, func() bool {
		return len(sink.handResults("A")) == 1
	}, waitFor, tick)

	mockClock.Advance(testCfg().HandGap).MustWait(ctx)
	require.Eventually(t, func() bool {
		state, ok := sink.last("B")
		return ok && state.HandID == "hand-2"
	}, waitFor, tick)
	_, gone := acct.left("B")
	assert.False(t, gone)
}

func TestQuarantineRefundsAndDetaches(t *testing.T) {
	a, sink, acct, _ := newTestActor(t, testCfg())
	seatTwo(t, a, sink)

	// Fence, then corrupt the chip count behind the engine's back. The
	// next action trips the conservation check.
	require.ErrorIs(t, a.Leave("nobody"), game.ErrNotSeated)
	a.table.Seats[0].Stack += 1000
	require.NoError(t, a.Act("A", game.Action{Kind: game.ActionCall}))

	require.Eventually(t, func() bool {
		select {
		case <-a.Done():
			return true
		default:
			return false
		}
	}, waitFor, tick)

	assert.True(t, sink.isDetached("A"))
	assert.True(t, sink.isDetached("B"))
	_, ok := acct.left("A")
	assert.True(t, ok)
	_, ok = acct.left("B")
	assert.True(t, ok)

	require.ErrorIs(t, a.Join("C", "Carol", 100), ErrRoomClosed)
}

func TestStopCashesOutSeats(t *testing.T) {
	a, _, acct, _ := newTestActor(t, testCfg())
	require.NoError(t, a.Join("A", "Alice", 100))
	require.NoError(t, a.Join("B", "Bob", 100))

	a.Stop()
	stack, ok := acct.left("A")
	require.True(t, ok)
	assert.Equal(t, int64(100), stack)
	stack, ok = acct.left("B")
	require.True(t, ok)
	assert.Equal(t, int64(100), stack)

	require.ErrorIs(t, a.Join("C", "Carol", 100), ErrRoomClosed)
}

func TestNotEnoughPlayersAfterDeparture(t *testing.T) {
	ctx := context.Background()
	a, sink, _, mockClock := newTestActor(t, testCfg())
	seatTwo(t, a, sink)

	require.NoError(t, a.Leave("B"))
	require.NoError(t, a.Act("A", game.Action{Kind: game.ActionFold}))
	require.Eventually(t, func() bool {
		return len(sink.handResults("A")) == 1
	}, waitFor, tick)

	mockClock.Advance(testCfg().HandGap).MustWait(ctx)
	require.Eventually(t, func() bool {
		return sink.lastStage("A") == string(game.StageNotEnoughPlayers)
	}, waitFor, tick)

	// A fresh opponent readies up and the table comes back to life.
	require.NoError(t, a.Join("C", "Carol", 100))
	a.SetReady("C", true)
	require.Eventually(t, func() bool {
		state, ok := sink.last("A")
		return ok && state.Stage == string(game.StagePreFlop) && state.HandID == "hand-3"
	}, waitFor, tick)
}

func TestMailboxDropsOldestDroppable(t *testing.T) {
	m := newMailbox(2)
	require.NoError(t, m.put(readyEvent{playerID: "A", ready: true}))
	require.NoError(t, m.put(readyEvent{playerID: "B", ready: true}))
	require.NoError(t, m.put(readyEvent{playerID: "C", ready: true}))

	ev, ok := m.take()
	require.True(t, ok)
	assert.Equal(t, "B", ev.(readyEvent).playerID)
	ev, ok = m.take()
	require.True(t, ok)
	assert.Equal(t, "C", ev.(readyEvent).playerID)
}

func TestMailboxRejectsDroppedJoin(t *testing.T) {
	m := newMailbox(1)
	reply := make(chan error, 1)
	require.NoError(t, m.put(joinEvent{playerID: "A", reply: reply}))
	require.NoError(t, m.put(readyEvent{playerID: "B", ready: true}))

	require.ErrorIs(t, <-reply, ErrRoomBusy)
	ev, ok := m.take()
	require.True(t, ok)
	assert.Equal(t, "B", ev.(readyEvent).playerID)
}
