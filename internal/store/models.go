package store

import "time"

type User struct {
	ID          string
	Name        string
	Email       string
	BalanceCC   int64
	CurrentRoom string
	CreatedAt   time.Time
}

type Session struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SmallBlindCC int64     `json:"small_blind_cc"`
	BigBlindCC   int64     `json:"big_blind_cc"`
	MinBuyinCC   int64     `json:"min_buyin_cc"`
	MaxBuyinCC   int64     `json:"max_buyin_cc"`
	MaxSeats     int       `json:"max_seats"`
	PlayerCount  int       `json:"player_count"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type LedgerEntry struct {
	ID        string
	UserID    string
	Type      string
	AmountCC  int64
	RefType   string
	RefID     string
	CreatedAt time.Time
}
