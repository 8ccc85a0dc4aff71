// Package dispatch runs the per-connection service loop: it receives
// packets, routes them to the session operation they name, and acknowledges
// or rejects each one on the wire.
package dispatch

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"jeux/internal/game"
	"jeux/internal/player"
	"jeux/internal/protocol"
	"jeux/internal/session"
)

// Serve registers conn as a session and runs its service loop until the
// connection is closed or the network fails, then tears the session down.
// inflight is incremented for the duration of the loop so a caller doing a
// graceful shutdown can wait for every in-flight client to finish logging
// out, replacing the reference implementation's busy-wait barrier with an
// ordinary WaitGroup.
func Serve(conn net.Conn, sessions *session.Registry, players *player.Registry, inflight *sync.WaitGroup, log *zap.Logger) {
	inflight.Add(1)
	defer inflight.Done()

	s, err := sessions.Register(conn)
	if err != nil {
		log.Warn("connection rejected", zap.Error(err))
		conn.Close()
		return
	}
	log = log.With(zap.Uint64("session", s.ID()))
	log.Debug("client service starting")

	loggedIn := false
	for {
		h, payload, err := s.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("recv error", zap.Error(err))
			}
			break
		}
		handle(s, sessions, players, h, payload, &loggedIn, log)
	}

	if loggedIn {
		if err := s.Logout(); err != nil {
			log.Debug("logout on teardown", zap.Error(err))
		}
	}
	sessions.Unregister(s)
	s.Close()
	log.Debug("client service ending")
}

func handle(s *session.Session, sessions *session.Registry, players *player.Registry, h protocol.Header, payload []byte, loggedIn *bool, log *zap.Logger) {
	log.Debug("packet received", zap.Stringer("type", h.Type), zap.Uint8("id", h.ID))

	switch {
	case h.Type == protocol.Login:
		if *loggedIn {
			nack(s, log)
			return
		}
		p := players.Register(string(payload))
		if err := s.Login(p); err != nil {
			log.Debug("login rejected", zap.Error(err))
			nack(s, log)
			return
		}
		*loggedIn = true
		ack(s, 0, 0, nil, log)

	case !*loggedIn:
		nack(s, log)

	case h.Type == protocol.Users:
		ack(s, 0, 0, []byte(formatUsers(sessions)), log)

	case h.Type == protocol.Invite:
		target := sessions.Lookup(string(payload))
		if target == nil {
			nack(s, log)
			return
		}
		targetRole := game.Role(h.Role)
		sourceRole := game.Second
		if targetRole == game.Second {
			sourceRole = game.First
		}
		id, err := s.MakeInvitation(target, sourceRole, targetRole)
		if err != nil {
			log.Debug("invite failed", zap.Error(err))
			nack(s, log)
			return
		}
		ack(s, uint8(id), 0, nil, log)

	case h.Type == protocol.Revoke:
		if err := s.RevokeInvitation(int(h.ID)); err != nil {
			log.Debug("revoke failed", zap.Error(err))
			nack(s, log)
			return
		}
		ack(s, 0, 0, nil, log)

	case h.Type == protocol.Decline:
		if err := s.DeclineInvitation(int(h.ID)); err != nil {
			log.Debug("decline failed", zap.Error(err))
			nack(s, log)
			return
		}
		ack(s, 0, 0, nil, log)

	case h.Type == protocol.Accept:
		board, err := s.AcceptInvitation(int(h.ID))
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			nack(s, log)
			return
		}
		ack(s, h.ID, 0, board, log)

	case h.Type == protocol.Move:
		if err := s.MakeMove(int(h.ID), string(payload)); err != nil {
			log.Debug("move failed", zap.Error(err))
			nack(s, log)
			return
		}
		ack(s, 0, 0, nil, log)

	case h.Type == protocol.Resign:
		if err := s.ResignGame(int(h.ID)); err != nil {
			log.Debug("resign failed", zap.Error(err))
			nack(s, log)
			return
		}
		ack(s, 0, 0, nil, log)

	default:
		log.Debug("unknown packet type", zap.Stringer("type", h.Type))
		nack(s, log)
	}
}

func ack(s *session.Session, id, role uint8, payload []byte, log *zap.Logger) {
	if err := s.Send(protocol.Header{Type: protocol.Ack, ID: id, Role: role}, payload); err != nil {
		log.Debug("ack send failed", zap.Error(err))
	}
}

func nack(s *session.Session, log *zap.Logger) {
	if err := s.Send(protocol.Header{Type: protocol.Nack}, nil); err != nil {
		log.Debug("nack send failed", zap.Error(err))
	}
}

// formatUsers renders the USERS ack payload: one "name\trating\n" line per
// currently logged-in player.
func formatUsers(sessions *session.Registry) string {
	var b strings.Builder
	for _, p := range sessions.Players() {
		fmt.Fprintf(&b, "%s\t%d\n", p.Name(), p.Rating())
	}
	return b.String()
}
