package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateSession issues a fresh session token for the user. Only the
// hash is stored; the raw token goes back to the client once.
func (s *Store) CreateSession(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	expires := time.Now().Add(ttl)
	_, err := s.Pool.Exec(ctx, `INSERT INTO sessions (token_hash, user_id, expires_at) VALUES ($1,$2,$3)`,
		HashToken(token), userID, expires)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetSessionUser resolves a raw token to its user. Expired sessions
// resolve to ErrNotFound.
func (s *Store) GetSessionUser(ctx context.Context, token string) (*User, error) {
	row := s.Pool.QueryRow(ctx, `SELECT u.id, u.name, u.email, u.balance_cc, u.current_room, u.created_at
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1 AND s.expires_at > now()`, HashToken(token))
	return scanUser(row)
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, HashToken(token))
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	return err
}
