package bot

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Engine wraps a single gopher-lua VM that computes a profile's moves. A
// lua.LState is not safe for concurrent use, so each bot profile gets its
// own Engine, called only from that bot's single client goroutine, which
// serves all of the bot's games in turn.
type Engine struct {
	vm *lua.LState
}

// NewEngine loads scriptPath into a fresh Lua VM and returns an Engine ready
// to answer ChooseMove calls.
func NewEngine(scriptPath string) (*Engine, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	if err := vm.DoFile(scriptPath); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load bot script %s: %w", scriptPath, err)
	}
	return &Engine{vm: vm}, nil
}

// ChooseMove calls the script's choose_move(board, role) global. board is a
// 9-character string, one per cell in row-major order, using 'X', 'O', or
// '_' for empty. role is 1 (first/X) or 2 (second/O). The returned cell is
// 1-indexed, matching the wire MOVE payload format.
func (e *Engine) ChooseMove(board [9]byte, role int) (int, error) {
	fn := e.vm.GetGlobal("choose_move")
	if fn == lua.LNil {
		return 0, fmt.Errorf("bot: choose_move is not defined in script")
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(string(board[:])), lua.LNumber(role)); err != nil {
		return 0, fmt.Errorf("bot: choose_move error: %w", err)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := result.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("bot: choose_move returned a non-number")
	}
	cell := int(n)
	if cell < 1 || cell > 9 {
		return 0, fmt.Errorf("bot: choose_move returned out-of-range cell %d", cell)
	}
	return cell, nil
}

// Close releases the underlying Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
