package store

import (
	"context"

	"github.com/google/uuid"
)

const roomColumns = `id, name, small_blind_cc, big_blind_cc, min_buyin_cc, max_buyin_cc, max_seats, player_count, status, created_at`

func (s *Store) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+roomColumns+` FROM room_info WHERE status = 'active' ORDER BY big_blind_cc ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Room{}
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Name, &r.SmallBlindCC, &r.BigBlindCC, &r.MinBuyinCC, &r.MaxBuyinCC, &r.MaxSeats, &r.PlayerCount, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetRoom(ctx context.Context, id string) (*Room, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM room_info WHERE id = $1`, id)
	var r Room
	if err := row.Scan(&r.ID, &r.Name, &r.SmallBlindCC, &r.BigBlindCC, &r.MinBuyinCC, &r.MaxBuyinCC, &r.MaxSeats, &r.PlayerCount, &r.Status, &r.CreatedAt); err != nil {
		return nil, mapNotFound(err)
	}
	return &r, nil
}

func (s *Store) CreateRoom(ctx context.Context, name string, sb, bb, minBuyin, maxBuyin int64, maxSeats int) (string, error) {
	id := uuid.NewString()
	_, err := s.Pool.Exec(ctx, `INSERT INTO room_info (id, name, small_blind_cc, big_blind_cc, min_buyin_cc, max_buyin_cc, max_seats, status) VALUES ($1,$2,$3,$4,$5,$6,$7,'active')`,
		id, name, sb, bb, minBuyin, maxBuyin, maxSeats)
	return id, err
}

// SetPlayerCount keeps the lobby's occupancy column current.
func (s *Store) SetPlayerCount(ctx context.Context, roomID string, count int) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE room_info SET player_count = $1 WHERE id = $2`, count, roomID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountRooms(ctx context.Context) (int, error) {
	row := s.Pool.QueryRow(ctx, `SELECT COUNT(1) FROM room_info`)
	var c int
	if err := row.Scan(&c); err != nil {
		return 0, err
	}
	return c, nil
}

// EnsureDefaultRooms seeds the lobby on first boot. Buy-in windows run
// 20x to 100x the big blind.
func (s *Store) EnsureDefaultRooms(ctx context.Context) error {
	c, err := s.CountRooms(ctx)
	if err != nil {
		return err
	}
	if c > 0 {
		return nil
	}
	if _, err := s.CreateRoom(ctx, "Low", 50, 100, 2000, 10000, 6); err != nil {
		return err
	}
	if _, err := s.CreateRoom(ctx, "Mid", 100, 200, 4000, 20000, 6); err != nil {
		return err
	}
	_, err = s.CreateRoom(ctx, "High", 500, 1000, 20000, 100000, 6)
	return err
}
