package game

import (
	"fmt"
	"time"
)

// Table is the room state machine. It is pure: no I/O, no clock, no
// randomness beyond the deck handed to StartHand. The room actor owns the
// only reference and serializes every mutation.
type Table struct {
	RoomID string
	HandID string
	Stage  Stage
	Seats  []*Seat
	Button int
	Board  []Card

	cfg           TableConfig
	deck          *Deck
	burns         []Card
	currentActor  int
	currentBet    int64
	minRaise      int64
	lastAggressor int
	revealed      bool
	handChips     int64
}

type Departure struct {
	PlayerID string
	Stack    int64
}

func NewTable(roomID string, cfg TableConfig) *Table {
	return &Table{
		RoomID:       roomID,
		Stage:        StageNotEnoughPlayers,
		Button:       -1,
		cfg:          cfg,
		currentActor: -1,
	}
}

func (t *Table) Config() TableConfig { return t.cfg }

func (t *Table) seatIndex(playerID string) int {
	for i, s := range t.Seats {
		if s.PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (t *Table) handRunning() bool {
	switch t.Stage {
	case StagePreFlop, StageFlop, StageTurn, StageRiver:
		return true
	}
	return false
}

// AddSeat seats a player with their buy-in stack. During a hand the seat
// waits and is dealt in from the next hand.
func (t *Table) AddSeat(playerID, name string, stack int64) error {
	if t.seatIndex(playerID) >= 0 {
		return ErrAlreadySeated
	}
	if len(t.Seats) >= t.cfg.MaxSeats {
		return ErrRoomFull
	}
	t.Seats = append(t.Seats, &Seat{
		PlayerID:  playerID,
		Name:      name,
		Stack:     stack,
		Status:    StatusWaiting,
		Connected: true,
	})
	return nil
}

// MarkLeave removes the seat, or defers removal to the end of the current
// hand when the seat is dealt in. The returned departure is non-nil only
// for an immediate removal.
func (t *Table) MarkLeave(playerID string) (*Departure, error) {
	idx := t.seatIndex(playerID)
	if idx < 0 {
		return nil, ErrNotSeated
	}
	s := t.Seats[idx]
	if t.handRunning() && s.inHand() {
		s.Leaving = true
		return nil, nil
	}
	t.removeSeat(idx)
	return &Departure{PlayerID: s.PlayerID, Stack: s.Stack}, nil
}

func (t *Table) removeSeat(idx int) {
	t.Seats = append(t.Seats[:idx], t.Seats[idx+1:]...)
	if t.Button >= idx {
		t.Button--
	}
	if t.currentActor >= idx {
		t.currentActor--
	}
}

func (t *Table) SetReady(playerID string, ready bool) error {
	idx := t.seatIndex(playerID)
	if idx < 0 {
		return ErrNotSeated
	}
	s := t.Seats[idx]
	if ready {
		if s.Status != StatusWaiting {
			return ErrInvalidAction
		}
		s.Status = StatusReady
		return nil
	}
	if s.Status != StatusReady {
		return ErrInvalidAction
	}
	s.Status = StatusWaiting
	return nil
}

func (t *Table) SetConnected(playerID string, connected bool) {
	if idx := t.seatIndex(playerID); idx >= 0 {
		t.Seats[idx].Connected = connected
	}
}

// Reconnect restores a seat that dropped mid-hand. Returns false when the
// seat is already gone.
func (t *Table) Reconnect(playerID string) bool {
	idx := t.seatIndex(playerID)
	if idx < 0 {
		return false
	}
	t.Seats[idx].Connected = true
	return true
}

func (t *Table) ReadyCount() int {
	n := 0
	for _, s := range t.Seats {
		if s.Status == StatusReady {
			n++
		}
	}
	return n
}

func (t *Table) CanStartHand() bool {
	return !t.handRunning() && t.ReadyCount() >= 2
}

// Reseat clears the finished hand: leavers and busted seats depart, the
// rest are readied for the next deal. Call between hands only.
func (t *Table) Reseat() []Departure {
	var out []Departure
	for i := 0; i < len(t.Seats); {
		s := t.Seats[i]
		if s.Leaving || !s.Connected || (s.inHand() && s.Stack == 0) {
			out = append(out, Departure{PlayerID: s.PlayerID, Stack: s.Stack})
			t.removeSeat(i)
			continue
		}
		if s.inHand() {
			s.Status = StatusReady
		}
		s.Hole = nil
		s.RoundBet = 0
		s.Contrib = 0
		s.acted = false
		i++
	}
	return out
}

// StartHand rotates the button, posts blinds and deals hole cards one at a
// time round-robin from the seat left of the button, two rounds.
func (t *Table) StartHand(handID string, deck *Deck) ([]Effect, error) {
	if t.handRunning() {
		return nil, ErrHandRunning
	}
	if t.ReadyCount() < 2 {
		t.Stage = StageNotEnoughPlayers
		return []Effect{EffectBroadcastState{}}, nil
	}

	t.HandID = handID
	t.deck = deck
	t.Board = nil
	t.burns = nil
	t.revealed = false
	t.currentBet = 0
	t.minRaise = t.cfg.BigBlind
	t.lastAggressor = -1

	for _, s := range t.Seats {
		if s.Status == StatusReady {
			s.Status = StatusInHand
		}
	}
	t.Button = t.nextInHand(t.Button)

	players := t.inHandCount()
	t.handChips = 0
	for _, s := range t.Seats {
		if s.inHand() {
			t.handChips += s.Stack
		}
	}

	for round := 0; round < 2; round++ {
		for i := 0; i < len(t.Seats); i++ {
			idx := (t.Button + 1 + i) % len(t.Seats)
			s := t.Seats[idx]
			if !s.inHand() {
				continue
			}
			c, err := t.deck.Draw()
			if err != nil {
				return nil, fmt.Errorf("dealing hole cards: %w", err)
			}
			s.Hole = append(s.Hole, c)
		}
	}

	var sbIdx, bbIdx int
	if players == 2 {
		sbIdx = t.Button
		bbIdx = t.nextInHand(t.Button)
	} else {
		sbIdx = t.nextInHand(t.Button)
		bbIdx = t.nextInHand(sbIdx)
	}
	t.postBlind(sbIdx, t.cfg.SmallBlind)
	t.postBlind(bbIdx, t.cfg.BigBlind)
	t.currentBet = t.cfg.BigBlind

	t.Stage = StagePreFlop
	if players == 2 {
		t.currentActor = t.firstActiveFrom(sbIdx)
	} else {
		t.currentActor = t.firstActiveFrom(t.nextInHand(bbIdx))
	}

	if t.currentActor < 0 {
		// Blinds put everyone all-in already.
		return t.advance()
	}
	return []Effect{EffectBroadcastState{}}, nil
}

func (t *Table) postBlind(idx int, blind int64) {
	s := t.Seats[idx]
	amount := min64(blind, s.Stack)
	s.Stack -= amount
	s.RoundBet += amount
	s.Contrib += amount
	if s.Stack == 0 {
		s.Status = StatusAllIn
	}
}

// nextInHand returns the next dealt-in seat clockwise from idx.
func (t *Table) nextInHand(idx int) int {
	for i := 1; i <= len(t.Seats); i++ {
		j := ((idx+i)%len(t.Seats) + len(t.Seats)) % len(t.Seats)
		if t.Seats[j].inHand() {
			return j
		}
	}
	return -1
}

// firstActiveFrom returns the first seat still facing decisions, scanning
// clockwise from idx inclusive.
func (t *Table) firstActiveFrom(idx int) int {
	if idx < 0 {
		return -1
	}
	for i := 0; i < len(t.Seats); i++ {
		j := (idx + i) % len(t.Seats)
		if t.Seats[j].active() {
			return j
		}
	}
	return -1
}

func (t *Table) inHandCount() int {
	n := 0
	for _, s := range t.Seats {
		if s.inHand() {
			n++
		}
	}
	return n
}

func (t *Table) activeCount() int {
	n := 0
	for _, s := range t.Seats {
		if s.active() {
			n++
		}
	}
	return n
}

func (t *Table) contenders() int {
	n := 0
	for _, s := range t.Seats {
		if s.inHand() && s.Status != StatusFolded {
			n++
		}
	}
	return n
}

// Apply validates and applies one player action, then advances the hand as
// far as it can go without further input.
func (t *Table) Apply(playerID string, a Action) ([]Effect, error) {
	if !t.handRunning() {
		return nil, ErrInvalidAction
	}
	if err := t.ValidateAction(playerID, a); err != nil {
		return nil, err
	}
	idx := t.seatIndex(playerID)
	s := t.Seats[idx]

	switch a.Kind {
	case ActionFold:
		s.Status = StatusFolded
		s.acted = true
	case ActionCheck:
		s.acted = true
	case ActionCall:
		need := min64(t.currentBet-s.RoundBet, s.Stack)
		t.pay(s, need)
		s.acted = true
	case ActionRaise:
		need := a.Amount - s.RoundBet
		t.pay(s, need)
		t.minRaise = a.Amount - t.currentBet
		t.currentBet = a.Amount
		t.reopenAction(idx)
		t.lastAggressor = idx
		s.acted = true
	case ActionAllIn:
		push := s.Stack
		newBet := s.RoundBet + push
		t.pay(s, push)
		if newBet > t.currentBet {
			if newBet >= t.currentBet+t.minRaise {
				t.minRaise = newBet - t.currentBet
				t.reopenAction(idx)
				t.lastAggressor = idx
			}
			// A short all-in raises the price of the call but does not
			// reopen the betting.
			t.currentBet = newBet
		}
		s.acted = true
	}

	return t.advance()
}

func (t *Table) pay(s *Seat, amount int64) {
	s.Stack -= amount
	s.RoundBet += amount
	s.Contrib += amount
	if s.Stack == 0 {
		s.Status = StatusAllIn
	}
}

func (t *Table) reopenAction(raiser int) {
	for i, s := range t.Seats {
		if i != raiser && s.active() {
			s.acted = false
		}
	}
}

// ApplyTimeout acts for a player whose turn clock expired: check when
// legal, otherwise fold.
func (t *Table) ApplyTimeout(playerID string) ([]Effect, error) {
	if t.ValidateAction(playerID, Action{Kind: ActionCheck}) == nil {
		return t.Apply(playerID, Action{Kind: ActionCheck})
	}
	return t.Apply(playerID, Action{Kind: ActionFold})
}

func (t *Table) bettingComplete() bool {
	for _, s := range t.Seats {
		if !s.active() {
			continue
		}
		if !s.acted || s.RoundBet != t.currentBet {
			return false
		}
	}
	return true
}

// advance moves the hand forward after an action: next actor, next street,
// or showdown.
func (t *Table) advance() ([]Effect, error) {
	if t.contenders() == 1 {
		if err := t.dealOutBoard(); err != nil {
			return nil, err
		}
		return t.settle()
	}

	if t.bettingComplete() {
		if t.Stage == StageRiver {
			return t.settle()
		}
		if err := t.dealStreet(); err != nil {
			return nil, err
		}
		t.resetRound()
		if t.activeCount() >= 2 {
			t.currentActor = t.firstActiveFrom(t.nextInHand(t.Button))
			return []Effect{EffectBroadcastState{}}, nil
		}
		// At most one player can still bet, run the board out.
		if err := t.dealOutBoard(); err != nil {
			return nil, err
		}
		return t.settle()
	}

	t.currentActor = t.firstActiveFrom((t.currentActor + 1) % len(t.Seats))
	return []Effect{EffectBroadcastState{}}, nil
}

func (t *Table) resetRound() {
	t.currentBet = 0
	t.minRaise = t.cfg.BigBlind
	t.lastAggressor = -1
	t.currentActor = -1
	for _, s := range t.Seats {
		s.RoundBet = 0
		s.acted = false
	}
}

func (t *Table) dealStreet() error {
	burn, err := t.deck.Draw()
	if err != nil {
		return fmt.Errorf("burning: %w", err)
	}
	t.burns = append(t.burns, burn)

	n := 1
	if t.Stage == StagePreFlop {
		n = 3
	}
	for i := 0; i < n; i++ {
		c, err := t.deck.Draw()
		if err != nil {
			return fmt.Errorf("dealing board: %w", err)
		}
		t.Board = append(t.Board, c)
	}

	switch t.Stage {
	case StagePreFlop:
		t.Stage = StageFlop
	case StageFlop:
		t.Stage = StageTurn
	case StageTurn:
		t.Stage = StageRiver
	}
	return nil
}

func (t *Table) dealOutBoard() error {
	for t.Stage != StageRiver {
		if err := t.dealStreet(); err != nil {
			return err
		}
	}
	return nil
}

// settle runs the showdown: rank the live hands, carve the pot into
// layers, pay the winners and emit the settlement deltas.
func (t *Table) settle() ([]Effect, error) {
	t.Stage = StageShowdown
	t.currentActor = -1

	contested := t.contenders() > 1
	t.revealed = contested

	entries := make([]PotEntry, 0, len(t.Seats))
	for i, s := range t.Seats {
		if !s.inHand() {
			continue
		}
		e := PotEntry{
			PlayerID: s.PlayerID,
			Seat:     i,
			Contrib:  s.Contrib,
			Folded:   s.Status == StatusFolded,
		}
		if !e.Folded && contested {
			cards := append([]Card{}, s.Hole...)
			cards = append(cards, t.Board...)
			e.Rank = Evaluate7(cards)
		}
		entries = append(entries, e)
	}

	payouts := ResolvePots(entries, t.Button, len(t.Seats))

	deltas := make(map[string]int64, len(entries))
	for _, e := range entries {
		deltas[e.PlayerID] = payouts[e.PlayerID] - e.Contrib
	}

	winners := make([]Winner, 0, len(payouts))
	for _, e := range entries {
		amount, ok := payouts[e.PlayerID]
		if !ok || amount == 0 {
			continue
		}
		s := t.Seats[t.seatIndex(e.PlayerID)]
		s.Stack += amount
		w := Winner{PlayerID: e.PlayerID, Name: s.Name, Amount: amount}
		if contested && !e.Folded {
			w.Hand = e.Rank.Category.Label()
		}
		winners = append(winners, w)
	}

	result := HandResult{
		Type:         "hand_result",
		HandID:       t.HandID,
		Winners:      winners,
		Board:        cardStrings(t.Board),
		NextHandInMS: int64(t.cfg.HandGap / time.Millisecond),
	}

	return []Effect{
		EffectBroadcastState{},
		EffectBroadcastMessage{Message: result},
		EffectSettle{HandID: t.HandID, Deltas: deltas},
	}, nil
}

// CurrentTurn reports whose action the table is waiting on.
func (t *Table) CurrentTurn() (string, bool) {
	if !t.handRunning() || t.currentActor < 0 {
		return "", false
	}
	return t.Seats[t.currentActor].PlayerID, true
}

func (t *Table) PotTotal() int64 {
	var total int64
	for _, s := range t.Seats {
		total += s.Contrib
	}
	return total
}

// Validate checks the structural invariants. A non-nil error means the
// room state can no longer be trusted.
func (t *Table) Validate() error {
	if t.handRunning() || t.Stage == StageShowdown {
		seen := map[Card]bool{}
		count := 0
		add := func(cards []Card) error {
			for _, c := range cards {
				if seen[c] {
					return fmt.Errorf("duplicate card %s", c)
				}
				seen[c] = true
				count++
			}
			return nil
		}
		if err := add(t.Board); err != nil {
			return err
		}
		if err := add(t.burns); err != nil {
			return err
		}
		for _, s := range t.Seats {
			if err := add(s.Hole); err != nil {
				return err
			}
		}
		if t.deck != nil {
			if err := add(t.deck.cards); err != nil {
				return err
			}
		}
		if count > 52 {
			return fmt.Errorf("%d cards in play", count)
		}
	}

	if t.handRunning() {
		var total int64
		for _, s := range t.Seats {
			if s.inHand() {
				total += s.Stack + s.Contrib
			}
		}
		if total != t.handChips {
			return fmt.Errorf("chip conservation broken: have %d want %d", total, t.handChips)
		}
		switch t.Stage {
		case StagePreFlop:
			if len(t.Board) != 0 {
				return fmt.Errorf("board has %d cards at %s", len(t.Board), t.Stage)
			}
		case StageFlop:
			if len(t.Board) != 3 {
				return fmt.Errorf("board has %d cards at %s", len(t.Board), t.Stage)
			}
		case StageTurn:
			if len(t.Board) != 4 {
				return fmt.Errorf("board has %d cards at %s", len(t.Board), t.Stage)
			}
		case StageRiver:
			if len(t.Board) != 5 {
				return fmt.Errorf("board has %d cards at %s", len(t.Board), t.Stage)
			}
		}
		if t.currentActor >= 0 && !t.Seats[t.currentActor].active() {
			return fmt.Errorf("turn cursor on inactive seat %d", t.currentActor)
		}
	}
	return nil
}
