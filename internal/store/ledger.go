package store

import (
	"context"
	"fmt"
	"time"
)

// RecordSettlement writes a hand settlement for one player. The entry
// is keyed on (user_id, ref_type, ref_id, type), so replaying the same
// settlement is a no-op; the bool reports whether this call inserted.
// Settlements move chips between table stacks, not durable balances,
// so only the ledger row is written.
func (s *Store) RecordSettlement(ctx context.Context, handID, userID string, delta int64) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `INSERT INTO ledger_entries (id, user_id, type, amount_cc, ref_type, ref_id)
		VALUES ($1,$2,'settlement',$3,'hand',$4)
		ON CONFLICT (user_id, ref_type, ref_id, type) WHERE type = 'settlement' DO NOTHING`,
		NewID(), userID, delta, handID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type LedgerFilter struct {
	UserID string
	Type   string
	From   *time.Time
	To     *time.Time
	Limit  int
}

func (s *Store) ListLedgerEntries(ctx context.Context, f LedgerFilter) ([]LedgerEntry, error) {
	q := `SELECT id, user_id, type, amount_cc, ref_type, ref_id, created_at FROM ledger_entries WHERE 1=1`
	args := []any{}
	if f.UserID != "" {
		args = append(args, f.UserID)
		q += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		q += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		q += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		q += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LedgerEntry{}
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.AmountCC, &e.RefType, &e.RefID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
