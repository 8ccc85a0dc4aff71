package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jeux/internal/game"
)

func TestAcceptAssignsMatchID(t *testing.T) {
	reg := NewRegistry(4)
	a, _ := newTestSession(t, reg)
	b, _ := newTestSession(t, reg)

	inv := NewInvitation(a, b, game.First, game.Second)
	assert.Equal(t, uint64(0), inv.MatchID())

	require.NoError(t, inv.Accept())
	assert.NotZero(t, inv.MatchID())
}

func TestCloseRejectsWrongRoleSentinel(t *testing.T) {
	reg := NewRegistry(4)
	a, _ := newTestSession(t, reg)
	b, _ := newTestSession(t, reg)

	inv := NewInvitation(a, b, game.First, game.Second)
	require.NoError(t, inv.Accept())

	assert.Error(t, inv.Close(game.NoRole), "a game in progress requires a playing role to resign")
	assert.NoError(t, inv.Close(game.First))
}
