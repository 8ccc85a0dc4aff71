package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jeux/internal/game"
)

func TestRegisterCreatesOnFirstSighting(t *testing.T) {
	reg := NewRegistry()
	p := reg.Register("alice")
	assert.Equal(t, "alice", p.Name())
	assert.Equal(t, InitialRating, p.Rating())
}

func TestRegisterReturnsSamePlayerForSameName(t *testing.T) {
	reg := NewRegistry()
	p1 := reg.Register("alice")
	p2 := reg.Register("alice")
	assert.Same(t, p1, p2)
}

func TestRegisterIsCaseSensitive(t *testing.T) {
	reg := NewRegistry()
	p1 := reg.Register("alice")
	p2 := reg.Register("Alice")
	assert.NotSame(t, p1, p2)
}

func TestRegisterNormalizesUnicodeLookalikes(t *testing.T) {
	reg := NewRegistry()
	// "é" as one precomposed rune (U+00E9) vs. "e" + combining acute
	// accent (U+0065 U+0301): byte-distinct, same normalized form.
	precomposed := "josé"
	decomposed := "josé"
	require.NotEqual(t, precomposed, decomposed)

	p1 := reg.Register(precomposed)
	p2 := reg.Register(decomposed)
	assert.Same(t, p1, p2)
}

func TestPostResultWinLossSumsToZero(t *testing.T) {
	reg := NewRegistry()
	a := reg.Register("a")
	b := reg.Register("b")

	PostResult(a, b, game.First)

	assert.Equal(t, 1516, a.Rating())
	assert.Equal(t, 1484, b.Rating())
	assert.Equal(t, 0, (a.Rating()-InitialRating)+(b.Rating()-InitialRating))
}

func TestPostResultDrawIsNearNeutral(t *testing.T) {
	reg := NewRegistry()
	a := reg.Register("a")
	b := reg.Register("b")

	PostResult(a, b, game.NoRole)

	assert.InDelta(t, InitialRating, a.Rating(), 1)
	assert.InDelta(t, InitialRating, b.Rating(), 1)
}
