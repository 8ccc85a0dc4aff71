package player

import (
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Registry maps usernames to Players, creating them on first sighting and
// retaining one strong reference per name for the server's lifetime.
type Registry struct {
	mu      sync.Mutex
	players map[string]*Player
}

// NewRegistry returns an empty player registry.
func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

// Register returns the existing player for name, or creates and retains a
// new one initialized to InitialRating. name is NFC-normalized first, so two
// byte-distinct but visually identical usernames (a precomposed vs.
// decomposed accent, say) resolve to the same Player.
func (r *Registry) Register(name string) *Player {
	name = norm.NFC.String(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[name]; ok {
		return p
	}
	p := newPlayer(name)
	r.players[name] = p
	return p
}
