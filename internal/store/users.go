package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, name, email, balance_cc, current_room, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var current *string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.BalanceCC, &current, &u.CreatedAt); err != nil {
		return nil, mapNotFound(err)
	}
	if current != nil {
		u.CurrentRoom = *current
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, name, email, passwordHash string, initial int64) (string, error) {
	id := uuid.NewString()
	_, err := s.Pool.Exec(ctx, `INSERT INTO users (id, name, email, password_hash, balance_cc) VALUES ($1,$2,$3,$4,$5)`,
		id, name, email, passwordHash, initial)
	return id, err
}

func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *Store) GetUserPasswordHash(ctx context.Context, email string) (userID, hash string, err error) {
	row := s.Pool.QueryRow(ctx, `SELECT id, password_hash FROM users WHERE email = $1`, email)
	if err := row.Scan(&userID, &hash); err != nil {
		return "", "", mapNotFound(err)
	}
	return userID, hash, nil
}

func (s *Store) SetCurrentRoom(ctx context.Context, userID, roomID string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE users SET current_room = $1 WHERE id = $2`, roomID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ClearCurrentRoom(ctx context.Context, userID string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE users SET current_room = NULL WHERE id = $1`, userID)
	return err
}

// Debit moves chips out of the durable balance, recording the movement
// as a ledger entry in the same transaction.
func (s *Store) Debit(ctx context.Context, userID string, amount int64, entryType, refType, refID string) (int64, error) {
	if amount < 0 {
		return 0, errors.New("amount must be positive")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var bal int64
	row := tx.QueryRow(ctx, `SELECT balance_cc FROM users WHERE id = $1 FOR UPDATE`, userID)
	if err := row.Scan(&bal); err != nil {
		return 0, mapNotFound(err)
	}
	if bal < amount {
		return 0, ErrInsufficientBalance
	}
	newBal := bal - amount
	if _, err := tx.Exec(ctx, `UPDATE users SET balance_cc = $1 WHERE id = $2`, newBal, userID); err != nil {
		return 0, err
	}
	if err := recordLedgerEntry(ctx, tx, userID, entryType, -amount, refType, refID); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBal, nil
}

// Credit moves chips back into the durable balance.
func (s *Store) Credit(ctx context.Context, userID string, amount int64, entryType, refType, refID string) (int64, error) {
	if amount < 0 {
		return 0, errors.New("amount must be positive")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var bal int64
	row := tx.QueryRow(ctx, `SELECT balance_cc FROM users WHERE id = $1 FOR UPDATE`, userID)
	if err := row.Scan(&bal); err != nil {
		return 0, mapNotFound(err)
	}
	newBal := bal + amount
	if _, err := tx.Exec(ctx, `UPDATE users SET balance_cc = $1 WHERE id = $2`, newBal, userID); err != nil {
		return 0, err
	}
	if err := recordLedgerEntry(ctx, tx, userID, entryType, amount, refType, refID); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBal, nil
}

func recordLedgerEntry(ctx context.Context, tx pgx.Tx, userID, entryType string, amount int64, refType, refID string) error {
	_, err := tx.Exec(ctx, `INSERT INTO ledger_entries (id, user_id, type, amount_cc, ref_type, ref_id) VALUES ($1,$2,$3,$4,$5,$6)`,
		NewID(), userID, entryType, amount, refType, refID)
	return err
}
