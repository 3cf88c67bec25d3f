package game

import (
	"fmt"
	"strings"
)

// DeckSize is the number of cards in a standard deck.
const DeckSize = 52

const (
	suitLetters = "cdhs"
	rankLetters = "A23456789TJQK"
)

// Card is a deck index in [0, 52). Suit is id/13 (clubs, diamonds, hearts,
// spades) and rank is id%13+1 with the ace as 1.
type Card uint8

// NewCard builds a card from a suit in 0-3 and a rank in 1-13.
func NewCard(suit, rank uint8) (Card, error) {
	if suit > 3 || rank == 0 || rank > 13 {
		return 0, fmt.Errorf("invalid card %d, %d", suit, rank)
	}
	return Card(suit*13 + rank - 1), nil
}

func (c Card) Suit() uint8 { return uint8(c) / 13 }

func (c Card) Rank() uint8 { return uint8(c)%13 + 1 }

func (c Card) Valid() bool { return c < DeckSize }

// String renders rank then suit, e.g. "As", "Td", "2c".
func (c Card) String() string {
	if !c.Valid() {
		return "??"
	}
	return string([]byte{rankLetters[c.Rank()-1], suitLetters[c.Suit()]})
}

func (c Card) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid card id %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Card) UnmarshalText(b []byte) error {
	parsed, err := ParseCard(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCard parses the String form.
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("invalid card %q", s)
	}
	r := strings.IndexByte(rankLetters, s[0])
	st := strings.IndexByte(suitLetters, s[1])
	if r < 0 || st < 0 {
		return 0, fmt.Errorf("invalid card %q", s)
	}
	return NewCard(uint8(st), uint8(r+1))
}

// NewDeck returns the canonical unshuffled deck.
func NewDeck() []Card {
	deck := make([]Card, DeckSize)
	for i := range deck {
		deck[i] = Card(i)
	}
	return deck
}
