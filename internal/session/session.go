// Package session implements the per-connection Session, the Invitation
// that links two sessions into a game, and the Registry that tracks every
// active connection.
package session

import (
	"fmt"
	"io"
	"net"
	"sync"

	"jeux/internal/game"
	"jeux/internal/player"
	"jeux/internal/protocol"
)

const invitationChunk = 16

// Session wraps one client connection: its socket, its logged-in player (if
// any), and the invitations it is party to, each addressed by a small local
// id handed out when the invitation is added to this session's list.
//
// Lock ordering: Registry.mu, then Session.mu, then Invitation.mu,
// then the per-game mutex, then Player.mu, then Session.writeMu. No two
// Session.mu are ever held at once; operations that touch both endpoints of
// an invitation acquire one session's lock, release it, then acquire the
// other's.
type Session struct {
	id       uint64
	conn     net.Conn
	registry *Registry

	writeMu sync.Mutex

	mu          sync.Mutex
	player      *player.Player
	invitations []*Invitation
}

func newSession(id uint64, conn net.Conn, registry *Registry) *Session {
	return &Session{id: id, conn: conn, registry: registry}
}

// ID returns the session's registry-assigned identity, stable for its
// lifetime.
func (s *Session) ID() uint64 { return s.id }

// Player returns the currently logged-in player, or nil.
func (s *Session) Player() *player.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// Send writes a packet to this session's connection. It serializes with any
// concurrent Send on the same session so that no two packets interleave on
// the wire.
func (s *Session) Send(h protocol.Header, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.Send(s.conn, h, payload)
}

// Recv reads the next packet from this session's connection. Only the
// dispatch loop that owns this session should call Recv.
func (s *Session) Recv() (protocol.Header, []byte, error) {
	return protocol.Recv(s.conn)
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Login attaches p to this session, failing if this session is already
// logged in or if p is already logged in on a different session. The check
// and the attach happen atomically under the registry's lock.
func (s *Session) Login(p *player.Player) error {
	return s.registry.login(s, p)
}

// Logout tears down every invitation this session is party to, then
// detaches its player: invitations it opened are revoked (or, if already
// accepted, resigned), and invitations it was invited into are declined (or
// resigned). The player stays attached during the teardown so a resigned
// game can post its Elo update. Failures tearing down any single invitation
// are ignored, and such an invitation stays in the list; Logout always
// clears the player.
func (s *Session) Logout() error {
	s.mu.Lock()
	if s.player == nil {
		s.mu.Unlock()
		return fmt.Errorf("session: not logged in")
	}
	n := len(s.invitations)
	s.mu.Unlock()

	for i := 0; i < n; i++ {
		s.mu.Lock()
		var inv *Invitation
		if i < len(s.invitations) {
			inv = s.invitations[i]
		}
		s.mu.Unlock()
		if inv == nil {
			continue
		}

		if inv.Source() == s {
			if err := s.RevokeInvitation(i); err != nil {
				_ = s.ResignGame(i)
			}
		} else {
			if err := s.DeclineInvitation(i); err != nil {
				_ = s.ResignGame(i)
			}
		}
	}

	s.mu.Lock()
	s.player = nil
	s.mu.Unlock()
	return nil
}

// AddInvitation appends inv to this session's list, reusing the first free
// slot, and returns its local id.
func (s *Session) AddInvitation(inv *Invitation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.invitations {
		if existing == nil {
			s.invitations[i] = inv
			return i
		}
	}
	if len(s.invitations)%invitationChunk == 0 {
		grown := make([]*Invitation, len(s.invitations), len(s.invitations)+invitationChunk)
		copy(grown, s.invitations)
		s.invitations = grown
	}
	s.invitations = append(s.invitations, inv)
	return len(s.invitations) - 1
}

// RemoveInvitation clears inv from this session's list and returns the id it
// occupied. ok is false if inv was not present.
func (s *Session) RemoveInvitation(inv *Invitation) (id int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.invitations {
		if existing == inv {
			s.invitations[i] = nil
			return i, true
		}
	}
	return 0, false
}

// indexOf returns the id inv occupies in this session's list.
func (s *Session) indexOf(inv *Invitation) (id int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.invitations {
		if existing == inv {
			return i, true
		}
	}
	return 0, false
}

func (s *Session) invitationAt(id int) *Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.invitations) {
		return nil
	}
	return s.invitations[id]
}

// MakeInvitation creates an OPEN invitation from s to target with the given
// roles and registers it in both sessions' lists, notifying target. It
// returns the id the invitation occupies in s's own list.
func (s *Session) MakeInvitation(target *Session, sourceRole, targetRole game.Role) (int, error) {
	if s == target {
		return 0, fmt.Errorf("session: cannot invite self")
	}
	inv := NewInvitation(s, target, sourceRole, targetRole)

	srcID := s.AddInvitation(inv)
	tgtID := target.AddInvitation(inv)

	if err := target.Send(protocol.Header{Type: protocol.Invited, ID: uint8(tgtID), Role: uint8(targetRole)},
		[]byte(nameOf(s))); err != nil {
		s.RemoveInvitation(inv)
		target.RemoveInvitation(inv)
		return 0, err
	}
	return srcID, nil
}

// RevokeInvitation closes an OPEN invitation that s opened, removes it from
// both sessions' lists, and notifies the target.
func (s *Session) RevokeInvitation(id int) error {
	inv := s.invitationAt(id)
	if inv == nil || inv.Source() != s {
		return fmt.Errorf("session: no such invitation")
	}
	if err := inv.Close(game.NoRole); err != nil {
		return err
	}
	s.RemoveInvitation(inv)
	target := inv.Target()
	tgtID, _ := target.RemoveInvitation(inv)
	return target.Send(protocol.Header{Type: protocol.Revoked, ID: uint8(tgtID)}, nil)
}

// DeclineInvitation closes an OPEN invitation that invited s, removes it
// from both sessions' lists, and notifies the source.
func (s *Session) DeclineInvitation(id int) error {
	inv := s.invitationAt(id)
	if inv == nil || inv.Target() != s {
		return fmt.Errorf("session: no such invitation")
	}
	if err := inv.Close(game.NoRole); err != nil {
		return err
	}
	s.RemoveInvitation(inv)
	source := inv.Source()
	srcID, _ := source.RemoveInvitation(inv)
	return source.Send(protocol.Header{Type: protocol.Declined, ID: uint8(srcID)}, nil)
}

// AcceptInvitation accepts an OPEN invitation that invited s, creating its
// game. It notifies the source, attaching the initial board when the source
// moves first, and returns the initial board for s's own ACK when s is the
// one who moves first instead.
func (s *Session) AcceptInvitation(id int) (initialBoard []byte, err error) {
	inv := s.invitationAt(id)
	if inv == nil || inv.Target() != s {
		return nil, fmt.Errorf("session: no such invitation")
	}
	source := inv.Source()
	srcID, ok := source.indexOf(inv)
	if !ok {
		return nil, fmt.Errorf("session: invitation missing from source")
	}
	if err := inv.Accept(); err != nil {
		return nil, err
	}

	g := inv.Game()
	var srcPayload []byte
	if inv.SourceRole() == game.First {
		srcPayload = []byte(g.Render())
	}
	if err := source.Send(protocol.Header{Type: protocol.Accepted, ID: uint8(srcID)}, srcPayload); err != nil {
		return nil, err
	}
	if inv.SourceRole() == game.First {
		return nil, nil
	}
	return []byte(g.Render()), nil
}

// MakeMove applies moveStr as s's move in the game attached to invitation
// id, notifies the peer, and on a terminal result notifies both sides,
// removes the invitation from both lists, and posts the Elo update.
func (s *Session) MakeMove(id int, moveStr string) error {
	inv := s.invitationAt(id)
	if inv == nil {
		return fmt.Errorf("session: no such invitation")
	}
	g := inv.Game()
	if g == nil {
		return fmt.Errorf("session: invitation has no game in progress")
	}
	role := inv.RoleOf(s)
	mv, err := game.ParseMove(role, moveStr)
	if err != nil {
		return err
	}
	if err := g.Apply(mv); err != nil {
		return err
	}

	peer := inv.Peer(s)
	peerID, _ := peer.indexOf(inv)
	if err := peer.Send(protocol.Header{Type: protocol.Moved, ID: uint8(peerID)}, []byte(g.Render())); err != nil {
		return err
	}

	if g.IsOver() {
		s.finishGame(inv, id, peer, peerID, g.Winner())
	}
	return nil
}

// ResignGame resigns s's side of the game attached to invitation id,
// notifies the peer, ends the invitation for both sides, and posts the Elo
// update.
func (s *Session) ResignGame(id int) error {
	inv := s.invitationAt(id)
	if inv == nil {
		return fmt.Errorf("session: no such invitation")
	}
	g := inv.Game()
	if g == nil {
		return fmt.Errorf("session: invitation has no game in progress")
	}
	role := inv.RoleOf(s)
	peer := inv.Peer(s)
	peerID, _ := peer.indexOf(inv)

	if err := inv.Close(role); err != nil {
		return err
	}
	if err := peer.Send(protocol.Header{Type: protocol.Resigned, ID: uint8(peerID)}, nil); err != nil {
		return err
	}
	s.finishGame(inv, id, peer, peerID, g.Winner())
	return nil
}

// finishGame notifies both endpoints of a just-terminated game, removes the
// invitation from both lists, and posts the Elo update. Called with the
// invitation already in a terminal state.
func (s *Session) finishGame(inv *Invitation, id int, peer *Session, peerID int, winner game.Role) {
	_ = s.Send(protocol.Header{Type: protocol.Ended, ID: uint8(id), Role: uint8(winner)}, nil)
	_ = peer.Send(protocol.Header{Type: protocol.Ended, ID: uint8(peerID), Role: uint8(winner)}, nil)

	s.RemoveInvitation(inv)
	peer.RemoveInvitation(inv)

	source, target := inv.Source(), inv.Target()
	firstPlayer, secondPlayer := source.Player(), target.Player()
	if inv.SourceRole() != game.First {
		firstPlayer, secondPlayer = secondPlayer, firstPlayer
	}
	player.PostResult(firstPlayer, secondPlayer, winner)

	s.registry.recordMatch(MatchResult{
		MatchID:      inv.MatchID(),
		FirstName:    firstPlayer.Name(),
		SecondName:   secondPlayer.Name(),
		FirstRating:  firstPlayer.Rating(),
		SecondRating: secondPlayer.Rating(),
		Winner:       winner,
	})
}

func nameOf(s *Session) string {
	if p := s.Player(); p != nil {
		return p.Name()
	}
	return ""
}

var _ io.Closer = (*Session)(nil)
