package game

import (
	"fmt"

	"github.com/paulhankin/poker"
)

// Ranker scores a seat's final hand. Higher scores win and equal scores tie.
type Ranker interface {
	Name() string
	Rules() Rules
	Score(hole, board []Card) (int64, error)
	Describe(hole, board []Card) (string, error)
}

const (
	RankerHoldem   = "holdem"
	RankerHighCard = "highcard"
)

// HoldemRanker evaluates two hole cards with a five card board.
type HoldemRanker struct{}

func (HoldemRanker) Name() string { return RankerHoldem }

func (HoldemRanker) Rules() Rules { return Rules{HandSize: 2, CommunityCards: 5} }

func (h HoldemRanker) Score(hole, board []Card) (int64, error) {
	final, err := h.finalHand(hole, board)
	if err != nil {
		return 0, err
	}
	return int64(poker.Eval7(&final)), nil
}

func (h HoldemRanker) Describe(hole, board []Card) (string, error) {
	final, err := h.finalHand(hole, board)
	if err != nil {
		return "", err
	}
	return poker.Describe(final[:])
}

func (HoldemRanker) finalHand(hole, board []Card) ([7]poker.Card, error) {
	var final [7]poker.Card
	if len(hole) != 2 || len(board) != 5 {
		return final, fmt.Errorf("holdem needs 2 hole and 5 board cards, got %d and %d", len(hole), len(board))
	}
	for i, c := range append(append([]Card{}, board...), hole...) {
		pc, err := poker.MakeCard(poker.Suit(c.Suit()), poker.Rank(c.Rank()))
		if err != nil {
			return final, fmt.Errorf("invalid card at idx %d: %w", i, err)
		}
		final[i] = pc
	}
	return final, nil
}

// HighCardRanker deals one card each. Aces are high and suit breaks rank ties
// in the order clubs, diamonds, hearts, spades.
type HighCardRanker struct{}

func (HighCardRanker) Name() string { return RankerHighCard }

func (HighCardRanker) Rules() Rules { return Rules{HandSize: 1, CommunityCards: 0} }

func (HighCardRanker) Score(hole, _ []Card) (int64, error) {
	if len(hole) == 0 {
		return 0, fmt.Errorf("highcard needs at least one card")
	}
	var best int64 = -1
	for _, c := range hole {
		if !c.Valid() {
			return 0, fmt.Errorf("invalid card id %d", uint8(c))
		}
		if v := highCardValue(c); v > best {
			best = v
		}
	}
	return best, nil
}

func (r HighCardRanker) Describe(hole, board []Card) (string, error) {
	if _, err := r.Score(hole, board); err != nil {
		return "", err
	}
	best := hole[0]
	for _, c := range hole[1:] {
		if highCardValue(c) > highCardValue(best) {
			best = c
		}
	}
	return best.String() + " high", nil
}

func highCardValue(c Card) int64 {
	rank := int64(c.Rank())
	if rank == 1 {
		rank = 14
	}
	return rank*4 + int64(c.Suit())
}

var rankers = map[string]Ranker{
	RankerHoldem:   HoldemRanker{},
	RankerHighCard: HighCardRanker{},
}

// RankerByName looks up a registered ranker.
func RankerByName(name string) (Ranker, error) {
	r, ok := rankers[name]
	if !ok {
		return nil, fmt.Errorf("unknown ranker: %s", name)
	}
	return r, nil
}
