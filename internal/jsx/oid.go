package jsx

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

const oidLength = 12

// OIDGenerator hands out origin identifiers. An oid is never handed out
// twice and never reused once it has been seen, even after the element
// carrying it is deleted.
type OIDGenerator struct {
	mu   sync.Mutex
	used map[string]string // oid -> path that owns it
}

// NewOIDGenerator creates an empty generator.
func NewOIDGenerator() *OIDGenerator {
	return &OIDGenerator{used: make(map[string]string)}
}

// New returns a fresh oid owned by path.
func (g *OIDGenerator) New(path string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		oid := strings.ReplaceAll(uuid.NewString(), "-", "")[:oidLength]
		if _, taken := g.used[oid]; !taken {
			g.used[oid] = path
			return oid
		}
	}
}

// Reserve records oid as owned by path. It reports false when another path
// already owns it.
func (g *OIDGenerator) Reserve(oid, path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	owner, taken := g.used[oid]
	if taken && owner != path {
		return false
	}
	g.used[oid] = path
	return true
}

// Release transfers ownership of oids from one path to another after a
// rename. Deleted files keep their oids reserved.
func (g *OIDGenerator) Release(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for oid, owner := range g.used {
		if owner == from {
			g.used[oid] = to
		}
	}
}

// StampOIDs adds a data-oid attribute to every element of the document that
// lacks one. Elements whose oid duplicates an earlier one in the file, or one
// owned by another file, are re-stamped. It reports whether anything changed.
func StampOIDs(doc *Document, gen *OIDGenerator) bool {
	changed := false
	seen := make(map[string]bool)
	for _, e := range doc.Elements() {
		if e.Name == "" {
			continue
		}
		oid := e.OID()
		if oid != "" && !seen[oid] && gen.Reserve(oid, doc.Path) {
			seen[oid] = true
			continue
		}
		fresh := gen.New(doc.Path)
		e.setStringAttr(OIDAttr, fresh)
		seen[fresh] = true
		changed = true
	}
	if changed {
		doc.reindex()
	}
	return changed
}

func (d *Document) reindex() {
	d.byOID = make(map[string]*Element, len(d.all))
	for _, e := range d.all {
		if oid := e.OID(); oid != "" {
			if _, dup := d.byOID[oid]; !dup {
				d.byOID[oid] = e
			}
		}
	}
}
