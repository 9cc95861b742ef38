// Package luafilter compiles Lua predicates into collector filters.
//
// A program is either a bare expression ("item.text == 'ok'") or a full
// chunk that returns a value ("if item.from == nil then return false end
// return true"). It runs with two globals: item, the event flattened to a
// table, and collected, the number of items accepted so far. A log table
// writes to the process logger.
package luafilter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	glua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/dokzlo13/tgcollect/internal/collector"
	"github.com/dokzlo13/tgcollect/internal/models"
)

// ErrClosed is returned by Eval after Close.
var ErrClosed = errors.New("lua filter closed")

// Program is a compiled predicate bound to its own Lua state.
// Evaluations are serialized; an LState is not safe for concurrent use.
type Program struct {
	name  string
	proto *glua.FunctionProto

	mu     sync.Mutex
	L      *glua.LState
	closed bool
}

// Compile parses src. Errors are configuration errors and should fail
// collector construction.
func Compile(name, src string) (*Program, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("lua filter %q: empty source", name)
	}
	// Expression form first, then a full chunk
	chunk, err := parse.Parse(strings.NewReader("return "+src), name)
	if err != nil {
		chunk, err = parse.Parse(strings.NewReader(src), name)
		if err != nil {
			return nil, fmt.Errorf("lua filter %q: %w", name, err)
		}
	}
	proto, err := glua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("lua filter %q: %w", name, err)
	}

	L := glua.NewState(glua.Options{SkipOpenLibs: true})
	// Only the side-effect free libraries
	for _, lib := range []struct {
		name string
		fn   glua.LGFunction
	}{
		{glua.BaseLibName, glua.OpenBase},
		{glua.StringLibName, glua.OpenString},
		{glua.TabLibName, glua.OpenTable},
		{glua.MathLibName, glua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(glua.LString(lib.name))
		L.Call(1, 0)
	}
	openLog(L, name)

	return &Program{name: name, proto: proto, L: L}, nil
}

// Name returns the program name used in errors
func (p *Program) Name() string {
	return p.name
}

// Eval runs the program against fields and returns its truthiness.
func (p *Program) Eval(ctx context.Context, fields map[string]any, collected int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, fmt.Errorf("lua filter %q: %w", p.name, ErrClosed)
	}

	L := p.L
	L.SetContext(ctx)
	defer L.RemoveContext()

	L.SetGlobal("item", goToLuaValue(L, fields))
	L.SetGlobal("collected", glua.LNumber(collected))

	fn := L.NewFunctionFromProto(p.proto)
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return false, fmt.Errorf("lua filter %q: %w", p.name, err)
	}

	result := L.Get(-1)
	L.Pop(1)

	accepted := glua.LVAsBool(result)
	log.Trace().Str("filter", p.name).Bool("accepted", accepted).Msg("Lua filter evaluated")
	return accepted, nil
}

// Close releases the Lua state. It waits for a running evaluation and
// may be called more than once.
func (p *Program) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.L.Close()
}

// For adapts a program into a collector filter for any event that can
// flatten itself. Once the program is closed the filter rejects
// everything; a collector that closes its program on end may still have
// a delivery in flight.
func For[K comparable, V models.Fielder](p *Program) collector.Filter[K, V] {
	return func(ctx context.Context, item V, collected *collector.Collection[K, V]) (bool, error) {
		ok, err := p.Eval(ctx, item.Fields(), collected.Len())
		if errors.Is(err, ErrClosed) {
			return false, nil
		}
		return ok, err
	}
}
