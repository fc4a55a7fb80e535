// Package branch provides the registry of branches: isolated working copies
// each backed by a code editor, together with the code application errors
// recorded against them.
package branch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"loom/internal/files"
	"loom/internal/jsx"
	"loom/internal/models"
)

// ErrNoBranch is returned when a branch ID is not registered.
var ErrNoBranch = errors.New("no branch found")

// Editor is the code store of a branch.
type Editor interface {
	ReadFile(ctx context.Context, path string) (*files.File, error)
	// WriteFile overwrites the file at path.
	WriteFile(ctx context.Context, path string, content []byte) error
	// ElementMetadata resolves an oid to its source location. It returns
	// nil without error when the oid is unknown.
	ElementMetadata(ctx context.Context, oid string) (*jsx.ElementMetadata, error)
}

// CodeError records a failed attempt to apply an action to source.
type CodeError struct {
	BranchID string      `json:"branchId"`
	Action   models.Kind `json:"action"`
	Message  string      `json:"message"`
	Time     time.Time   `json:"time"`
}

// Branch is one registered branch.
type Branch struct {
	ID     string
	Editor Editor

	mu     sync.Mutex
	errors []CodeError
}

// RecordError stores a code application error.
func (b *Branch) RecordError(action models.Kind, err error) CodeError {
	ce := CodeError{
		BranchID: b.ID,
		Action:   action,
		Message:  err.Error(),
		Time:     time.Now(),
	}
	b.mu.Lock()
	b.errors = append(b.errors, ce)
	b.mu.Unlock()
	return ce
}

// Errors returns the recorded errors, oldest first.
func (b *Branch) Errors() []CodeError {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]CodeError, len(b.errors))
	copy(out, b.errors)
	return out
}

// ClearErrors drops the recorded errors.
func (b *Branch) ClearErrors() {
	b.mu.Lock()
	b.errors = nil
	b.mu.Unlock()
}

// Registry maps branch IDs to branches. The empty ID refers to the active
// branch.
type Registry struct {
	mu       sync.RWMutex
	branches map[string]*Branch
	active   string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{branches: make(map[string]*Branch)}
}

// Add registers a branch. The first branch added becomes active.
func (r *Registry) Add(id string, editor Editor) *Branch {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := &Branch{ID: id, Editor: editor}
	r.branches[id] = b
	if r.active == "" {
		r.active = id
	}
	return b
}

// Remove unregisters a branch.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.branches, id)
	if r.active == id {
		r.active = ""
	}
}

// Get returns the branch with id, or the active branch when id is empty.
func (r *Registry) Get(id string) (*Branch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == "" {
		id = r.active
	}
	b, ok := r.branches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoBranch, id)
	}
	return b, nil
}

// SetActive selects the active branch.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.branches[id]; !ok {
		return fmt.Errorf("%w: %q", ErrNoBranch, id)
	}
	r.active = id
	return nil
}

// Active returns the active branch ID.
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// IDs returns the registered branch IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.branches))
	for id := range r.branches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
