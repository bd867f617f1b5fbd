// Package script runs Lua scripts against a vault. Each instance exposes a
// global "emerald" table with filesystem and shard bindings.
package script

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/gpabois/emerald/internal/markdown"
	"github.com/gpabois/emerald/internal/vault"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Instances add their run ID to it.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithOutput redirects the Lua print function.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

// WithParseOptions sets the options used when scripts parse shards.
func WithParseOptions(opts ...markdown.Option) Option {
	return func(e *Engine) { e.parse = opts }
}

// Engine creates script instances bound to one vault.
type Engine struct {
	vault  *vault.Vault
	logger *slog.Logger
	out    io.Writer
	parse  []markdown.Option
}

// NewEngine creates an engine for v.
func NewEngine(v *vault.Vault, opts ...Option) *Engine {
	e := &Engine{vault: v, logger: slog.Default(), out: os.Stdout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Instance is one Lua state. It is not safe for concurrent use.
type Instance struct {
	id     string
	L      *lua.LState
	engine *Engine
	logger *slog.Logger
	files  []*file

	// listed remembers the entries handed out by walk and read_dir, so
	// that their paths open even below a linked directory.
	listed map[vault.Path]vault.DirEntry
}

// NewInstance creates a fresh execution context.
func (e *Engine) NewInstance() *Instance {
	id := uuid.NewString()
	inst := &Instance{
		id:     id,
		L:      lua.NewState(),
		engine: e,
		logger: e.logger.With(slog.String("run_id", id)),
		listed: make(map[vault.Path]vault.DirEntry),
	}
	inst.bind()
	return inst
}

// ID returns the run ID of the instance.
func (i *Instance) ID() string { return i.id }

// Execute runs code. The context bounds the run.
func (i *Instance) Execute(ctx context.Context, code string) error {
	return i.run(ctx, "chunk", func() error { return i.L.DoString(code) })
}

// ExecuteFile runs the script at a host path.
func (i *Instance) ExecuteFile(ctx context.Context, path string) error {
	return i.run(ctx, path, func() error { return i.L.DoFile(path) })
}

func (i *Instance) run(ctx context.Context, name string, fn func() error) error {
	i.L.SetContext(ctx)
	defer i.L.RemoveContext()
	i.logger.Debug("script: run", slog.String("name", name))
	if err := fn(); err != nil {
		i.logger.Debug("script: failed", slog.String("name", name), slog.String("error", err.Error()))
		return fmt.Errorf("script: %s: %w", name, err)
	}
	return nil
}

// Close releases the Lua state and closes files the script left open.
func (i *Instance) Close() {
	for _, f := range i.files {
		if err := f.close(); err != nil {
			i.logger.Warn("script: close file", slog.String("path", f.path.String()), slog.String("error", err.Error()))
		}
	}
	i.files = nil
	i.L.Close()
}

func (i *Instance) bind() {
	L := i.L
	registerTypes(L)

	api := L.NewTable()
	L.SetField(api, "fs", i.fsTable())
	L.SetField(api, "shard", L.NewFunction(i.luaShard))
	L.SetField(api, "run_id", lua.LString(i.id))
	L.SetGlobal("emerald", api)
	L.SetGlobal("print", L.NewFunction(i.luaPrint))
}

func (i *Instance) luaPrint(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, top)
	for n := 1; n <= top; n++ {
		parts[n-1] = L.ToStringMeta(L.Get(n)).String()
	}
	fmt.Fprintln(i.engine.out, strings.Join(parts, "\t"))
	return 0
}
