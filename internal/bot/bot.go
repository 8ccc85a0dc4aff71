package bot

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"jeux/internal/dispatch"
	"jeux/internal/player"
	"jeux/internal/session"
)

// Start brings up one connection per profile: a server-side Session
// registered the same way any real client's connection is, wired over an
// in-process net.Pipe to this package's client-side player driver. inflight
// is the same wait-group dispatch.Serve uses for every other connection, so
// shutdown drains bot connections exactly like human ones.
func Start(sessions *session.Registry, players *player.Registry, inflight *sync.WaitGroup, profiles []Profile, log *zap.Logger) error {
	for _, prof := range profiles {
		engine, err := NewEngine(prof.Script)
		if err != nil {
			return fmt.Errorf("start bot %q: %w", prof.Name, err)
		}

		serverConn, clientConn := net.Pipe()
		go dispatch.Serve(serverConn, sessions, players, inflight, log.With(zap.String("bot", prof.Name)))
		go newPlayer(clientConn, prof.Name, engine, log.With(zap.String("bot", prof.Name))).run()
	}
	return nil
}
