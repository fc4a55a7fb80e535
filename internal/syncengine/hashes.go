package syncengine

import (
	"strings"
	"sync"
)

// hashTable maps a project-relative path to the SHA-256 of the content last
// synced for it, in either direction.
type hashTable struct {
	mu sync.Mutex
	m  map[string]string
}

func newHashTable() *hashTable {
	return &hashTable{m: make(map[string]string)}
}

func (h *hashTable) get(p string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.m[p]
	return v, ok
}

func (h *hashTable) set(p, hash string) {
	h.mu.Lock()
	h.m[p] = hash
	h.mu.Unlock()
}

// swap records hash for p and reports whether it differs from the previous
// value.
func (h *hashTable) swap(p, hash string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.m[p] == hash {
		return false
	}
	h.m[p] = hash
	return true
}

func (h *hashTable) delete(p string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.m[p]
	delete(h.m, p)
	return ok
}

// deleteTree drops p and every path under it.
func (h *hashTable) deleteTree(p string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for k := range h.m {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(h.m, k)
			n++
		}
	}
	return n
}

func (h *hashTable) hasTree(p string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k := range h.m {
		if k == p || strings.HasPrefix(k, p+"/") {
			return true
		}
	}
	return false
}

// move carries the hashes under from to the same paths under to.
func (h *hashTable) move(from, to string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	moved := make(map[string]string)
	for k, v := range h.m {
		switch {
		case k == from:
			moved[to] = v
		case strings.HasPrefix(k, from+"/"):
			moved[to+strings.TrimPrefix(k, from)] = v
		default:
			continue
		}
		delete(h.m, k)
	}
	for k, v := range moved {
		h.m[k] = v
	}
}

func (h *hashTable) clear() {
	h.mu.Lock()
	h.m = make(map[string]string)
	h.mu.Unlock()
}

func (h *hashTable) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.m)
}
