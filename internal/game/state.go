package game

import "time"

const ProtocolVersion = "1.0"

type Stage string

const (
	StageNotEnoughPlayers Stage = "NOT_ENOUGH_PLAYERS"
	StagePreFlop          Stage = "PRE_FLOP"
	StageFlop             Stage = "FLOP"
	StageTurn             Stage = "TURN"
	StageRiver            Stage = "RIVER"
	StageShowdown         Stage = "SHOWDOWN"
)

type SeatStatus string

const (
	StatusWaiting SeatStatus = "WAITING"
	StatusReady   SeatStatus = "READY"
	StatusInHand  SeatStatus = "IN_HAND"
	StatusFolded  SeatStatus = "FOLDED"
	StatusAllIn   SeatStatus = "ALL_IN"
	StatusLeft    SeatStatus = "LEFT"
)

type ActionType string

const (
	ActionFold  ActionType = "fold"
	ActionCheck ActionType = "check"
	ActionCall  ActionType = "call"
	ActionRaise ActionType = "raise"
	ActionAllIn ActionType = "all_in"
)

type Action struct {
	Kind   ActionType
	Amount int64
}

// Seat is one chair at the table. Stack chips live here for the duration
// of the session; the durable balance is settled outside the engine.
type Seat struct {
	PlayerID  string
	Name      string
	Stack     int64
	Hole      []Card
	Status    SeatStatus
	RoundBet  int64
	Contrib   int64
	Connected bool
	Leaving   bool
	acted     bool
}

func (s *Seat) inHand() bool {
	switch s.Status {
	case StatusInHand, StatusFolded, StatusAllIn:
		return true
	}
	return false
}

// active means still facing decisions: dealt in, not folded, chips behind.
func (s *Seat) active() bool {
	return s.Status == StatusInHand
}

type TableConfig struct {
	SmallBlind int64
	BigBlind   int64
	MaxSeats   int
	TurnTime   time.Duration
	HandGap    time.Duration
}

// Effects returned by table transitions. The room actor dispatches them;
// the engine never touches the network or the store.
type Effect any

// EffectBroadcastState tells the router to fan out per-player room views.
type EffectBroadcastState struct{}

// EffectBroadcastMessage sends the same payload to every connected player.
type EffectBroadcastMessage struct {
	Message any
}

// EffectDirect sends a payload to a single player.
type EffectDirect struct {
	PlayerID string
	Message  any
}

// EffectSettle carries the end-of-hand chip deltas. Deltas sum to zero.
type EffectSettle struct {
	HandID string
	Deltas map[string]int64
}

type Winner struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Hand     string `json:"hand,omitempty"`
}

type HandResult struct {
	Type         string   `json:"type"`
	HandID       string   `json:"hand_id"`
	Winners      []Winner `json:"winners"`
	Board        []string `json:"board"`
	NextHandInMS int64    `json:"next_hand_in_ms"`
}

type SeatView struct {
	Seat      int      `json:"seat"`
	PlayerID  string   `json:"player_id"`
	Name      string   `json:"name"`
	Stack     int64    `json:"stack"`
	Status    string   `json:"status"`
	RoundBet  int64    `json:"round_bet"`
	Connected bool     `json:"connected"`
	Hole      []string `json:"hole_cards,omitempty"`
}

type RoomState struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	RoomID          string     `json:"room_id"`
	HandID          string     `json:"hand_id,omitempty"`
	Stage           string     `json:"stage"`
	Board           []string   `json:"board"`
	Pot             int64      `json:"pot"`
	CurrentBet      int64      `json:"current_bet"`
	MinRaise        int64      `json:"min_raise"`
	CallAmount      int64      `json:"call_amount"`
	Button          int        `json:"button"`
	CurrentActor    string     `json:"current_actor,omitempty"`
	TurnTimeMS      int64      `json:"turn_time_ms"`
	Seats           []SeatView `json:"seats"`
	YourSeat        int        `json:"your_seat"`
}

// SnapshotFor renders the table as seen by one player. Hole cards are
// masked except the viewer's own; at showdown every non-folded hand that
// went to evaluation is open.
func (t *Table) SnapshotFor(viewerID string) RoomState {
	board := cardStrings(t.Board)
	state := RoomState{
		Type:            "room_state",
		ProtocolVersion: ProtocolVersion,
		RoomID:          t.RoomID,
		HandID:          t.HandID,
		Stage:           string(t.Stage),
		Board:           board,
		Pot:             t.PotTotal(),
		CurrentBet:      t.currentBet,
		MinRaise:        t.minRaise,
		Button:          t.Button,
		TurnTimeMS:      int64(t.cfg.TurnTime / time.Millisecond),
		YourSeat:        -1,
	}
	if t.currentActor >= 0 {
		state.CurrentActor = t.Seats[t.currentActor].PlayerID
	}
	for i, s := range t.Seats {
		view := SeatView{
			Seat:      i,
			PlayerID:  s.PlayerID,
			Name:      s.Name,
			Stack:     s.Stack,
			Status:    string(s.Status),
			RoundBet:  s.RoundBet,
			Connected: s.Connected,
		}
		reveal := s.PlayerID == viewerID || (t.Stage == StageShowdown && t.revealed && s.Status != StatusFolded && s.inHand())
		if reveal && len(s.Hole) > 0 {
			view.Hole = cardStrings(s.Hole)
		}
		if s.PlayerID == viewerID {
			state.YourSeat = i
			state.CallAmount = max64(0, t.currentBet-s.RoundBet)
		}
		state.Seats = append(state.Seats, view)
	}
	return state
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
