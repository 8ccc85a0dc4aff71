package bot

import (
	"errors"
	"io"
	"net"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"jeux/internal/game"
	"jeux/internal/protocol"
)

// player drives one bot's client-side half of a net.Pipe connection: it
// logs in once under its profile's name, auto-accepts every invitation
// addressed to it, and answers each board it is handed with a move from
// its engine. From the session registry's point of view this is an
// ordinary client — the bot never touches session/invitation/game state
// directly.
type player struct {
	conn   net.Conn
	name   string
	engine *Engine
	log    *zap.Logger

	roles map[int]game.Role // local invitation id -> this bot's role
}

func newPlayer(conn net.Conn, name string, engine *Engine, log *zap.Logger) *player {
	return &player{
		conn:   conn,
		name:   name,
		engine: engine,
		log:    log,
		roles:  make(map[int]game.Role),
	}
}

// run logs the bot in and services packets until the connection closes.
func (p *player) run() {
	if err := protocol.Send(p.conn, protocol.Header{Type: protocol.Login}, []byte(p.name)); err != nil {
		p.log.Warn("bot login send failed", zap.Error(err))
		return
	}
	if _, _, err := protocol.Recv(p.conn); err != nil {
		p.log.Warn("bot login ack failed", zap.Error(err))
		return
	}

	for {
		h, payload, err := protocol.Recv(p.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.log.Debug("bot recv error", zap.Error(err))
			}
			return
		}
		p.handle(h, payload)
	}
}

func (p *player) handle(h protocol.Header, payload []byte) {
	switch h.Type {
	case protocol.Invited:
		id := int(h.ID)
		p.roles[id] = game.Role(h.Role)
		if err := protocol.Send(p.conn, protocol.Header{Type: protocol.Accept, ID: h.ID}, nil); err != nil {
			p.log.Warn("bot accept send failed", zap.Error(err))
		}

	case protocol.Ack:
		// Only the ack to our own ACCEPT ever carries a payload (the
		// initial board, handed to us because we move first); the ack to
		// our own MOVE never does. A payload-less ack needs no action.
		if len(payload) > 0 {
			p.move(int(h.ID), payload)
		}

	case protocol.Moved:
		p.move(int(h.ID), payload)

	case protocol.Ended, protocol.Resigned, protocol.Revoked, protocol.Declined:
		delete(p.roles, int(h.ID))
	}
}

func (p *player) move(id int, board []byte) {
	role, ok := p.roles[id]
	if !ok {
		return
	}
	cell, err := p.engine.ChooseMove(parseBoard(board), int(role))
	if err != nil {
		p.log.Warn("bot move selection failed", zap.Error(err), zap.Int("invitation", id))
		return
	}
	if err := protocol.Send(p.conn, protocol.Header{Type: protocol.Move, ID: uint8(id)}, []byte(strconv.Itoa(cell))); err != nil {
		p.log.Warn("bot move send failed", zap.Error(err))
	}
}

// parseBoard reads the rendered board text (game.Game.Render's format: two
// "-----\n" separator lines between three "c|c|c\n" rows) into a 9-cell
// array, normalizing the empty marker to '_' for the Lua-facing API.
func parseBoard(rendered []byte) [9]byte {
	var cells [9]byte
	for i := range cells {
		cells[i] = '_'
	}

	lines := strings.Split(string(rendered), "\n")
	rowLines := [3]int{0, 2, 4}
	for r, li := range rowLines {
		if li >= len(lines) {
			continue
		}
		line := lines[li]
		for c := 0; c < 3; c++ {
			idx := c * 2
			if idx >= len(line) {
				continue
			}
			if ch := line[idx]; ch != ' ' {
				cells[r*3+c] = ch
			}
		}
	}
	return cells
}
