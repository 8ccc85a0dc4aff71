package dispatch

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jeux/internal/player"
	"jeux/internal/protocol"
	"jeux/internal/session"
)

// client wraps one end of a net.Pipe with the protocol codec, for test
// bodies to speak the wire protocol directly against a live Serve loop.
type client struct {
	conn net.Conn
}

func (c *client) send(t *testing.T, h protocol.Header, payload []byte) {
	t.Helper()
	require.NoError(t, protocol.Send(c.conn, h, payload))
}

func (c *client) recv(t *testing.T) (protocol.Header, []byte) {
	t.Helper()
	h, payload, err := protocol.Recv(c.conn)
	require.NoError(t, err)
	return h, payload
}

func newHarness(t *testing.T) (*session.Registry, *player.Registry, *sync.WaitGroup) {
	t.Helper()
	return session.NewRegistry(8), player.NewRegistry(), &sync.WaitGroup{}
}

func dial(t *testing.T, sessions *session.Registry, players *player.Registry, wg *sync.WaitGroup) *client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	go Serve(serverConn, sessions, players, wg, zap.NewNop())
	return &client{conn: clientConn}
}

func login(t *testing.T, c *client, name string) {
	t.Helper()
	c.send(t, protocol.Header{Type: protocol.Login}, []byte(name))
	h, _ := c.recv(t)
	require.Equal(t, protocol.Ack, h.Type)
}

func TestLoginThenNonLoginIsGated(t *testing.T) {
	sessions, players, wg := newHarness(t)
	c := dial(t, sessions, players, wg)

	c.send(t, protocol.Header{Type: protocol.Users}, nil)
	h, _ := c.recv(t)
	assert.Equal(t, protocol.Nack, h.Type)

	login(t, c, "alice")

	c.send(t, protocol.Header{Type: protocol.Login}, []byte("alice"))
	h, _ = c.recv(t)
	assert.Equal(t, protocol.Nack, h.Type, "second login on the same connection is rejected")
}

func TestUsersListsLoggedInPlayers(t *testing.T) {
	sessions, players, wg := newHarness(t)
	a := dial(t, sessions, players, wg)
	b := dial(t, sessions, players, wg)

	login(t, a, "alice")
	login(t, b, "bob")

	a.send(t, protocol.Header{Type: protocol.Users}, nil)
	h, payload := a.recv(t)
	require.Equal(t, protocol.Ack, h.Type)
	assert.Contains(t, string(payload), "alice\t1500\n")
	assert.Contains(t, string(payload), "bob\t1500\n")
}

func TestInviteAcceptPlayToWin(t *testing.T) {
	sessions, players, wg := newHarness(t)
	a := dial(t, sessions, players, wg) // will invite, plays First
	b := dial(t, sessions, players, wg) // invitee, plays Second

	login(t, a, "alice")
	login(t, b, "bob")

	// net.Pipe is unbuffered, so each peer notification must be read before
	// the requester's Ack, which the server sends only after it.
	a.send(t, protocol.Header{Type: protocol.Invite, Role: uint8(2)}, []byte("bob")) // bob plays Second
	invited, payload := b.recv(t)
	require.Equal(t, protocol.Invited, invited.Type)
	assert.Equal(t, uint8(2), invited.Role, "INVITED carries the recipient's own role")
	assert.Equal(t, "alice", string(payload))
	tgtID := invited.ID

	ackA, _ := a.recv(t)
	require.Equal(t, protocol.Ack, ackA.Type)
	srcID := ackA.ID

	b.send(t, protocol.Header{Type: protocol.Accept, ID: tgtID}, nil)
	acceptedA, boardA := a.recv(t)
	require.Equal(t, protocol.Accepted, acceptedA.Type)
	assert.NotEmpty(t, boardA, "alice plays first, so her ACCEPTED carries the initial board")

	ackB, board := b.recv(t)
	require.Equal(t, protocol.Ack, ackB.Type)
	assert.Empty(t, board, "bob plays second, so the accept ack carries no board")

	// X (alice) wins the top row: cells 1, 2, 3; O (bob) takes 4, 5.
	a.send(t, protocol.Header{Type: protocol.Move, ID: srcID}, []byte("1"))
	movedB, _ := b.recv(t)
	require.Equal(t, protocol.Moved, movedB.Type)
	ackMoveA, _ := a.recv(t)
	require.Equal(t, protocol.Ack, ackMoveA.Type)

	b.send(t, protocol.Header{Type: protocol.Move, ID: tgtID}, []byte("4"))
	movedA, _ := a.recv(t)
	require.Equal(t, protocol.Moved, movedA.Type)
	ackMoveB, _ := b.recv(t)
	require.Equal(t, protocol.Ack, ackMoveB.Type)

	a.send(t, protocol.Header{Type: protocol.Move, ID: srcID}, []byte("2"))
	movedB2, _ := b.recv(t)
	require.Equal(t, protocol.Moved, movedB2.Type)
	ackMoveA2, _ := a.recv(t)
	require.Equal(t, protocol.Ack, ackMoveA2.Type)

	b.send(t, protocol.Header{Type: protocol.Move, ID: tgtID}, []byte("5"))
	movedA2, _ := a.recv(t)
	require.Equal(t, protocol.Moved, movedA2.Type)
	ackMoveB2, _ := b.recv(t)
	require.Equal(t, protocol.Ack, ackMoveB2.Type)

	a.send(t, protocol.Header{Type: protocol.Move, ID: srcID}, []byte("3"))

	// The winning move sends MOVED to bob, then ENDED to alice and bob,
	// and only then the generic move Ack back to alice.
	finalMovedB, _ := b.recv(t)
	require.Equal(t, protocol.Moved, finalMovedB.Type)

	endedA, _ := a.recv(t)
	assert.Equal(t, protocol.Ended, endedA.Type)
	assert.Equal(t, uint8(1), endedA.Role) // First wins

	endedB, _ := b.recv(t)
	assert.Equal(t, protocol.Ended, endedB.Type)
	assert.Equal(t, uint8(1), endedB.Role)

	ackMoveA3, _ := a.recv(t)
	require.Equal(t, protocol.Ack, ackMoveA3.Type)
}

func TestDisconnectTearsDownSession(t *testing.T) {
	sessions, players, wg := newHarness(t)
	c := dial(t, sessions, players, wg)
	login(t, c, "alice")

	require.NotNil(t, sessions.Lookup("alice"))
	c.conn.Close()
	wg.Wait()

	assert.Nil(t, sessions.Lookup("alice"))
}
