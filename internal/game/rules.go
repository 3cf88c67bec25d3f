package game

import "fmt"

// Rules fixes how many cards a deal consumes.
type Rules struct {
	HandSize       int `json:"hand_size"`
	CommunityCards int `json:"community_cards"`
}

func (r Rules) Validate() error {
	if r.HandSize <= 0 {
		return fmt.Errorf("hand size must be positive, got %d", r.HandSize)
	}
	if r.CommunityCards < 0 {
		return fmt.Errorf("community cards must not be negative, got %d", r.CommunityCards)
	}
	return nil
}

// CardsNeeded is players*hand + community.
func (r Rules) CardsNeeded(players int) int {
	return players*r.HandSize + r.CommunityCards
}

// Accommodates reports whether one deck covers a full table of players.
func (r Rules) Accommodates(players int) bool {
	return players > 0 && r.Validate() == nil && r.CardsNeeded(players) <= DeckSize
}

// MaxPlayers is the largest table one deck can deal.
func (r Rules) MaxPlayers() int {
	if r.Validate() != nil {
		return 0
	}
	return (DeckSize - r.CommunityCards) / r.HandSize
}
