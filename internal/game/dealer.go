package game

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hand is the private cards dealt to one seat.
type Hand struct {
	Address string `json:"address"`
	Seat    int    `json:"seat"`
	Cards   []Card `json:"cards"`
}

// Outcome is everything a deal produces. It is a pure function of the seed,
// the session id, the ordered player list and the rules.
type Outcome struct {
	SessionID string `json:"session_id"`
	Seed      string `json:"seed"`
	Rules     Rules  `json:"rules"`
	Deck      []Card `json:"deck"`
	Hands     []Hand `json:"hands"`
	Board     []Card `json:"board"`
}

// Deal shuffles a fresh deck with the seed-derived stream, deals HandSize
// cards to each player round-robin in join order, then the board.
//
// # Determinism
//
// Two calls with equal inputs return byte-identical outcomes on any machine.
func Deal(seed []byte, sessionID string, players []string, rules Rules) (*Outcome, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, errors.New("deal needs at least one player")
	}
	if !rules.Accommodates(len(players)) {
		return nil, fmt.Errorf("%d players need %d cards, deck has %d",
			len(players), rules.CardsNeeded(len(players)), DeckSize)
	}

	stream, err := NewStream(seed, sessionID)
	if err != nil {
		return nil, err
	}
	deck := NewDeck()
	if err := stream.Shuffle(deck); err != nil {
		return nil, err
	}

	hands := make([]Hand, len(players))
	for i, addr := range players {
		hands[i] = Hand{Address: addr, Seat: i, Cards: make([]Card, 0, rules.HandSize)}
	}
	next := 0
	for round := 0; round < rules.HandSize; round++ {
		for i := range hands {
			hands[i].Cards = append(hands[i].Cards, deck[next])
			next++
		}
	}
	board := append([]Card{}, deck[next:next+rules.CommunityCards]...)

	return &Outcome{
		SessionID: sessionID,
		Seed:      hex.EncodeToString(seed),
		Rules:     rules,
		Deck:      deck,
		Hands:     hands,
		Board:     board,
	}, nil
}

// Digest is BLAKE2b-256 over the canonical JSON encoding. Nil and empty card
// lists encode the same, so a stored and re-dealt outcome always agree.
func (o *Outcome) Digest() (string, error) {
	b, err := json.Marshal(o.canonical())
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (o *Outcome) canonical() *Outcome {
	c := o.Clone()
	if c.Deck == nil {
		c.Deck = []Card{}
	}
	if c.Board == nil {
		c.Board = []Card{}
	}
	if c.Hands == nil {
		c.Hands = []Hand{}
	}
	for i := range c.Hands {
		if c.Hands[i].Cards == nil {
			c.Hands[i].Cards = []Card{}
		}
	}
	return c
}

// HandAt returns the hand dealt to seat.
func (o *Outcome) HandAt(seat int) (Hand, bool) {
	for _, h := range o.Hands {
		if h.Seat == seat {
			return h, true
		}
	}
	return Hand{}, false
}

func (o *Outcome) Clone() *Outcome {
	if o == nil {
		return nil
	}
	c := *o
	c.Deck = cloneCards(o.Deck)
	c.Board = cloneCards(o.Board)
	if o.Hands != nil {
		c.Hands = make([]Hand, len(o.Hands))
		for i, h := range o.Hands {
			h.Cards = cloneCards(h.Cards)
			c.Hands[i] = h
		}
	}
	return &c
}

// cloneCards copies cs and keeps a nil slice nil.
func cloneCards(cs []Card) []Card {
	if cs == nil {
		return nil
	}
	return append(make([]Card, 0, len(cs)), cs...)
}
