package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"holdem-casino/internal/store"
)

const (
	settleAttempts = 3
	settleBackoff  = 100 * time.Millisecond
)

// Balances is the slice of the store the ledger service needs.
// *store.Store satisfies it.
type Balances interface {
	GetSessionUser(ctx context.Context, token string) (*store.User, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
	Debit(ctx context.Context, userID string, amount int64, entryType, refType, refID string) (int64, error)
	Credit(ctx context.Context, userID string, amount int64, entryType, refType, refID string) (int64, error)
	SetCurrentRoom(ctx context.Context, userID, roomID string) error
	ClearCurrentRoom(ctx context.Context, userID string) error
	RecordSettlement(ctx context.Context, handID, userID string, delta int64) (bool, error)
}

// Service bridges room chip movement to durable balances and the
// ledger. It implements room.Accounts.
type Service struct {
	store Balances
	log   zerolog.Logger
	sleep func(time.Duration)
}

func New(st Balances, logger zerolog.Logger) *Service {
	return &Service{store: st, log: logger, sleep: time.Sleep}
}

// ResolveSession maps a raw session token to its user.
func (s *Service) ResolveSession(ctx context.Context, token string) (*store.User, error) {
	return s.store.GetSessionUser(ctx, token)
}

func (s *Service) LoadPlayer(ctx context.Context, id string) (*store.User, error) {
	return s.store.GetUser(ctx, id)
}

// OnJoin debits the buy-in from the durable balance and records which
// room the player sits in.
func (s *Service) OnJoin(ctx context.Context, playerID, roomID string, buyIn int64) error {
	if _, err := s.store.Debit(ctx, playerID, buyIn, "buy_in", "room", roomID); err != nil {
		return err
	}
	if err := s.store.SetCurrentRoom(ctx, playerID, roomID); err != nil {
		s.log.Warn().Err(err).Str("player_id", playerID).Str("room_id", roomID).Msg("current_room_update_failed")
	}
	return nil
}

// OnLeave credits the remaining stack back and clears the room marker.
func (s *Service) OnLeave(ctx context.Context, playerID, roomID string, stack int64) error {
	if stack > 0 {
		if _, err := s.store.Credit(ctx, playerID, stack, "cash_out", "room", roomID); err != nil {
			return err
		}
	}
	if err := s.store.ClearCurrentRoom(ctx, playerID); err != nil {
		s.log.Warn().Err(err).Str("player_id", playerID).Msg("current_room_clear_failed")
	}
	return nil
}

// ApplySettlement records one player's hand result. Replays are no-ops
// thanks to the ledger's settlement key; transient store failures are
// retried with backoff. The hand stands either way.
func (s *Service) ApplySettlement(ctx context.Context, handID, playerID string, delta int64) error {
	var err error
	for attempt := 0; attempt < settleAttempts; attempt++ {
		if attempt > 0 {
			s.sleep(settleBackoff << (attempt - 1))
		}
		var applied bool
		applied, err = s.store.RecordSettlement(ctx, handID, playerID, delta)
		if err == nil {
			if !applied {
				s.log.Debug().Str("hand_id", handID).Str("player_id", playerID).Msg("settlement_replayed")
			}
			return nil
		}
		s.log.Warn().Err(err).
			Str("hand_id", handID).
			Str("player_id", playerID).
			Int("attempt", attempt+1).
			Msg("settlement_retry")
	}
	return fmt.Errorf("settle hand %s for %s: %w", handID, playerID, err)
}
