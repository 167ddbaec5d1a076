package game

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	mathrand "math/rand"
)

var ErrDeckEmpty = errors.New("deck_empty")

type Deck struct {
	cards []Card
}

// NewDeck builds a full 52-card deck shuffled with the given source.
// Callers that need reproducible hands pass a seeded source.
func NewDeck(rnd *mathrand.Rand) *Deck {
	cards := make([]Card, 0, 52)
	for s := Spades; s <= Clubs; s++ {
		for r := Two; r <= Ace; r++ {
			cards = append(cards, Card{Rank: r, Suit: s})
		}
	}
	rnd.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	return &Deck{cards: cards}
}

// NewHandDeck seeds a fresh deck from the OS entropy source. One per hand.
func NewHandDeck() *Deck {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("deck: entropy source unavailable: " + err.Error())
	}
	seed := int64(binary.LittleEndian.Uint64(b[:]))
	return NewDeck(mathrand.New(mathrand.NewSource(seed)))
}

// NewStackedDeck returns a deck that deals the given cards in order.
// Test helper for deterministic hands.
func NewStackedDeck(cards ...Card) *Deck {
	cp := make([]Card, len(cards))
	copy(cp, cards)
	return &Deck{cards: cp}
}

func (d *Deck) Draw() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrDeckEmpty
	}
	c := d.cards[0]
	d.cards = d.cards[1:]
	return c, nil
}

func (d *Deck) Remaining() int {
	return len(d.cards)
}
