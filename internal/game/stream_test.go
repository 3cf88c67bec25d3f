package game

import (
	"testing"

	"gonum.org/v1/gonum/stat"
)

// chi-square critical values well past the 99.99th percentile so a fixed seed
// only fails on a real distribution bug
const (
	chiSquareDF6  = 35.0
	chiSquareDF51 = 120.0
)

func TestUintNUniform(t *testing.T) {
	s, err := NewStream(testSeed(42), "uniform")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	const n, samples = 7, 70000
	obs := make([]float64, n)
	for i := 0; i < samples; i++ {
		v, err := s.UintN(n)
		if err != nil {
			t.Fatalf("UintN: %v", err)
		}
		if v >= n {
			t.Fatalf("UintN(%d) returned %d", n, v)
		}
		obs[v]++
	}
	exp := make([]float64, n)
	for i := range exp {
		exp[i] = samples / n
	}
	if chi := stat.ChiSquare(obs, exp); chi > chiSquareDF6 {
		t.Fatalf("chi-square %.2f exceeds %.2f: %v", chi, chiSquareDF6, obs)
	}
}

func TestUintNZero(t *testing.T) {
	s, _ := NewStream(testSeed(1), "s")
	if _, err := s.UintN(0); err == nil {
		t.Fatalf("expected error for n=0")
	}
	if v, err := s.UintN(1); err != nil || v != 0 {
		t.Fatalf("UintN(1) = %d, %v", v, err)
	}
}

// Position of the ace of clubs after a shuffle must be uniform over seeds.
func TestShuffleUniform(t *testing.T) {
	const trials = 26000
	obs := make([]float64, DeckSize)
	for i := uint64(0); i < trials; i++ {
		s, err := NewStream(testSeed(i), "shuffle")
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		deck := NewDeck()
		if err := s.Shuffle(deck); err != nil {
			t.Fatalf("shuffle: %v", err)
		}
		for pos, c := range deck {
			if c == 0 {
				obs[pos]++
				break
			}
		}
	}
	exp := make([]float64, DeckSize)
	for i := range exp {
		exp[i] = float64(trials) / DeckSize
	}
	if chi := stat.ChiSquare(obs, exp); chi > chiSquareDF51 {
		t.Fatalf("chi-square %.2f exceeds %.2f", chi, chiSquareDF51)
	}
	if m := stat.Mean(obs, nil); m != float64(trials)/DeckSize {
		t.Fatalf("mean bucket %.2f", m)
	}
}

func TestNewStreamSeedBounds(t *testing.T) {
	if _, err := NewStream(make([]byte, MinSeedSize-1), "s"); err == nil {
		t.Fatalf("expected error for short seed")
	}
	if _, err := NewStream(make([]byte, MaxSeedSize+1), "s"); err == nil {
		t.Fatalf("expected error for long seed")
	}
	if _, err := NewStream(make([]byte, MaxSeedSize), "s"); err != nil {
		t.Fatalf("max seed rejected: %v", err)
	}
}
