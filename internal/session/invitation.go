package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"jeux/internal/game"
)

// matchSeq assigns a process-wide increasing identity to every invitation
// that reaches ACCEPTED, used only to correlate audit records (§10.1) with
// the match they describe; it has no bearing on core gameplay semantics.
var matchSeq uint64

// State is the invitation's position in its three-state lifecycle.
type State int

const (
	Open State = iota
	Accepted
	Closed
)

// Invitation links exactly two sessions, source and target, plus the roles
// each will play. The same Invitation is referenced from both endpoints'
// invitation lists, each under its own local id.
type Invitation struct {
	source     *Session
	target     *Session
	sourceRole game.Role
	targetRole game.Role

	mu      sync.Mutex
	state   State
	game    *game.Game
	matchID uint64
}

// NewInvitation links source and target in the OPEN state. source and
// target must be distinct sessions.
func NewInvitation(source, target *Session, sourceRole, targetRole game.Role) *Invitation {
	return &Invitation{
		source:     source,
		target:     target,
		sourceRole: sourceRole,
		targetRole: targetRole,
		state:      Open,
	}
}

// Source returns the inviting session. Lock-free: immutable for the
// invitation's life.
func (inv *Invitation) Source() *Session { return inv.source }

// Target returns the invited session. Lock-free: immutable for the
// invitation's life.
func (inv *Invitation) Target() *Session { return inv.target }

// SourceRole returns the role the source will play. Lock-free: immutable.
func (inv *Invitation) SourceRole() game.Role { return inv.sourceRole }

// TargetRole returns the role the target will play. Lock-free: immutable.
func (inv *Invitation) TargetRole() game.Role { return inv.targetRole }

// Peer returns the endpoint of inv other than s. s must be one of the two
// endpoints.
func (inv *Invitation) Peer(s *Session) *Session {
	if s == inv.source {
		return inv.target
	}
	return inv.source
}

// RoleOf returns the role s plays in this invitation. s must be one of the
// two endpoints.
func (inv *Invitation) RoleOf(s *Session) game.Role {
	if s == inv.source {
		return inv.sourceRole
	}
	return inv.targetRole
}

// Game returns the invitation's game, or nil if it is not yet ACCEPTED.
func (inv *Invitation) Game() *game.Game {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.game
}

// State returns the invitation's current lifecycle state.
func (inv *Invitation) State() State {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.state
}

// Accept transitions an OPEN invitation to ACCEPTED, creating its game.
// It fails unless the invitation is currently OPEN.
func (inv *Invitation) Accept() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.state != Open {
		return fmt.Errorf("invitation: not open")
	}
	inv.state = Accepted
	inv.game = game.New()
	inv.matchID = atomic.AddUint64(&matchSeq, 1)
	return nil
}

// MatchID returns the identity assigned to this invitation's game when it
// was accepted, for audit correlation. Zero if never accepted.
func (inv *Invitation) MatchID() uint64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.matchID
}

// Close transitions an OPEN or ACCEPTED invitation to CLOSED. If a game is
// in progress, role must be game.First or game.Second and the game is
// resigned on that role's behalf; if there is no game, role must be
// game.NoRole.
func (inv *Invitation) Close(role game.Role) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.state != Open && inv.state != Accepted {
		return fmt.Errorf("invitation: not open or accepted")
	}
	if inv.game != nil {
		if role != game.First && role != game.Second {
			return fmt.Errorf("invitation: resignation requires a playing role")
		}
		if err := inv.game.Resign(role); err != nil {
			return fmt.Errorf("invitation: %w", err)
		}
	} else if role != game.NoRole {
		return fmt.Errorf("invitation: no game in progress, role must be NoRole")
	}
	inv.state = Closed
	return nil
}
