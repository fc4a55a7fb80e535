// Package history provides the undo/redo stack of applied actions.
//
// Pushes made between StartTransaction and CommitTransaction collapse into
// one undo step holding the last pushed action.
package history

import (
	"sync"

	"loom/internal/models"
)

// History holds the undo and redo stacks.
type History struct {
	mu sync.Mutex

	undo []models.Action
	redo []models.Action

	inTransaction bool
	pending       models.Action
}

// New creates an empty history.
func New() *History {
	return &History{}
}

// StartTransaction opens a transaction. It is a no-op while one is open.
func (h *History) StartTransaction() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inTransaction {
		return
	}
	h.inTransaction = true
	h.pending = nil
}

// CommitTransaction closes the open transaction and records its pending
// action, if any.
func (h *History) CommitTransaction() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commit()
}

// InTransaction reports whether a transaction is open.
func (h *History) InTransaction() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inTransaction
}

// Push records an applied action. Inside a transaction it replaces the
// pending action; otherwise it clears the redo stack.
func (h *History) Push(a models.Action) {
	if a == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inTransaction {
		h.pending = a
		return
	}
	h.push(a)
}

// Undo pops the most recent action and returns its inverse for the caller
// to apply. An open transaction is committed first. It returns nil when
// there is nothing to undo.
func (h *History) Undo() (models.Action, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.commit()
	if len(h.undo) == 0 {
		return nil, nil
	}
	a := h.undo[len(h.undo)-1]
	inv, err := Inverse(a)
	if err != nil {
		return nil, err
	}
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, a)
	return inv, nil
}

// Redo pops the most recently undone action, records it again and returns
// it for the caller to re-apply. It returns nil when there is nothing to
// redo.
func (h *History) Redo() models.Action {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.inTransaction || len(h.redo) == 0 {
		return nil
	}
	a := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, a)
	return a
}

// CanUndo reports whether Undo would return an action.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0 || (h.inTransaction && h.pending != nil)
}

// CanRedo reports whether Redo would return an action.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.inTransaction && len(h.redo) > 0
}

// Length returns the number of undo steps.
func (h *History) Length() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo)
}

// Clear drops both stacks and any open transaction.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo = nil
	h.redo = nil
	h.inTransaction = false
	h.pending = nil
}

func (h *History) commit() {
	if !h.inTransaction {
		return
	}
	h.inTransaction = false
	pending := h.pending
	h.pending = nil
	if pending != nil {
		h.push(pending)
	}
}

func (h *History) push(a models.Action) {
	if len(h.redo) > 0 {
		h.redo = nil
	}
	h.undo = append(h.undo, a)
}
