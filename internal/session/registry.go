package session

import (
	"fmt"
	"net"
	"sync"

	"jeux/internal/game"
	"jeux/internal/player"
)

// Registry tracks every active connection as a Session and enforces that at
// most one session is logged in as any given username at a time.
//
// Capacity is fixed at construction, mirroring the bounded connection table
// of the system this package is modeled on; Register fails once the table
// is full rather than growing without bound.
type Registry struct {
	mu       sync.Mutex
	slots    []*Session
	nextID   uint64
	shutdown bool
	empty    *sync.Cond
	recorder MatchRecorder
}

// MatchResult is a best-effort, outbound-only record of one finished match,
// handed to a MatchRecorder (§10.1); core gameplay state never reads it back.
type MatchResult struct {
	MatchID                   uint64
	FirstName, SecondName     string
	FirstRating, SecondRating int
	Winner                    game.Role
}

// MatchRecorder receives every finished match. Implementations must not
// block the caller for long — RecordMatch runs on the goroutine that just
// finished the game, not a dedicated one.
type MatchRecorder interface {
	RecordMatch(MatchResult)
}

// SetRecorder installs r as the destination for finished-match records. A
// nil recorder (the default) makes recording a no-op.
func (r *Registry) SetRecorder(rec MatchRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = rec
}

func (r *Registry) recordMatch(res MatchResult) {
	r.mu.Lock()
	rec := r.recorder
	r.mu.Unlock()
	if rec != nil {
		rec.RecordMatch(res)
	}
}

// NewRegistry returns an empty registry with room for capacity concurrent
// sessions.
func NewRegistry(capacity int) *Registry {
	r := &Registry{slots: make([]*Session, capacity)}
	r.empty = sync.NewCond(&r.mu)
	return r
}

// Register creates and tracks a Session for conn, failing if the registry
// is full or shutting down.
func (r *Registry) Register(conn net.Conn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return nil, fmt.Errorf("session registry: shutting down")
	}
	for i, slot := range r.slots {
		if slot == nil {
			r.nextID++
			s := newSession(r.nextID, conn, r)
			r.slots[i] = s
			return s, nil
		}
	}
	return nil, fmt.Errorf("session registry: at capacity")
}

// Unregister removes s from the table. It does not close s's connection or
// log it out; callers are expected to have already done both.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, slot := range r.slots {
		if slot == s {
			r.slots[i] = nil
		}
	}
	if r.activeLocked() == 0 {
		r.empty.Broadcast()
	}
}

// Lookup returns the session currently logged in as name, or nil.
func (r *Registry) Lookup(name string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, slot := range r.slots {
		if slot == nil {
			continue
		}
		if p := slot.Player(); p != nil && p.Name() == name {
			return slot
		}
	}
	return nil
}

// AllPlayers returns the usernames of every currently logged-in session.
func (r *Registry) AllPlayers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, slot := range r.slots {
		if slot == nil {
			continue
		}
		if p := slot.Player(); p != nil {
			names = append(names, p.Name())
		}
	}
	return names
}

// Players returns the Player of every currently logged-in session.
func (r *Registry) Players() []*player.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	var players []*player.Player
	for _, slot := range r.slots {
		if slot == nil {
			continue
		}
		if p := slot.Player(); p != nil {
			players = append(players, p)
		}
	}
	return players
}

// login attaches p to s, checking for a conflicting login and performing
// the attach atomically under the registry's lock. See Session.Login.
func (r *Registry) login(s *Session, p *player.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, slot := range r.slots {
		if slot == nil || slot == s {
			continue
		}
		if existing := slot.Player(); existing != nil && existing.Name() == p.Name() {
			return fmt.Errorf("session: %q is already logged in", p.Name())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		return fmt.Errorf("session: already logged in")
	}
	s.player = p
	return nil
}

// activeLocked reports the number of occupied slots. Callers must hold r.mu.
func (r *Registry) activeLocked() int {
	n := 0
	for _, slot := range r.slots {
		if slot != nil {
			n++
		}
	}
	return n
}

// WaitForEmpty blocks until no sessions remain registered.
func (r *Registry) WaitForEmpty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.activeLocked() > 0 {
		r.empty.Wait()
	}
}

// ShutdownAll marks the registry as shutting down (failing future
// Register calls) and closes every currently registered connection, which
// unblocks each connection's dispatch loop with a read error so it can
// unwind through its normal logout/unregister/close path.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	r.shutdown = true
	var conns []*Session
	for _, slot := range r.slots {
		if slot != nil {
			conns = append(conns, slot)
		}
	}
	r.mu.Unlock()

	for _, s := range conns {
		_ = s.Close()
	}
}
