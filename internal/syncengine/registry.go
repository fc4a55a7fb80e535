package syncengine

import (
	"log/slog"
	"reflect"
	"sync"

	"loom/internal/provider"
)

type instance struct {
	engine *Engine
	cfg    Config
	refs   int
}

// Registry shares one engine per (sandbox, local root) pair and stops it
// when the last holder releases it.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*instance
	log       *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		instances: make(map[string]*instance),
		log:       logger.With("component", "sync"),
	}
}

// Key returns the registry key for a sandbox and local root.
func Key(sandboxID, root string) string {
	return sandboxID + ":" + root
}

// Acquire returns the engine for sandboxID and local, creating it on first
// use. The configuration of later calls is ignored.
func (r *Registry) Acquire(sandboxID string, remote provider.Provider, local LocalFS, cfg Config, opts ...Option) *Engine {
	key := Key(sandboxID, local.Root())

	r.mu.Lock()
	defer r.mu.Unlock()

	if in, ok := r.instances[key]; ok {
		if !reflect.DeepEqual(in.cfg, cfg) {
			r.log.Warn("acquire with different config; reusing existing engine", "key", key)
		}
		in.refs++
		r.log.Debug("reusing sync engine", "key", key, "refs", in.refs)
		return in.engine
	}

	e := New(remote, local, cfg, opts...)
	e.key = key
	r.instances[key] = &instance{engine: e, cfg: cfg, refs: 1}
	r.log.Debug("created sync engine", "key", key)
	return e
}

// Release drops one reference to the engine under key. The last release
// stops the engine and forgets it. It reports whether key was known.
func (r *Registry) Release(key string) bool {
	r.mu.Lock()
	in, ok := r.instances[key]
	if !ok {
		r.mu.Unlock()
		r.log.Warn("release of unknown sync engine", "key", key)
		return false
	}
	in.refs--
	last := in.refs <= 0
	if last {
		delete(r.instances, key)
	}
	r.mu.Unlock()

	if last {
		in.engine.Stop()
		r.log.Debug("removed sync engine", "key", key)
	}
	return true
}

// Refs returns the number of holders of key.
func (r *Registry) Refs(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in, ok := r.instances[key]; ok {
		return in.refs
	}
	return 0
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}
