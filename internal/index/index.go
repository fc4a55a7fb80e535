// Package index provides the SQLite-backed element index that resolves oids
// to their source files and locations.
package index

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"loom/internal/jsx"
	"loom/internal/util"
)

//go:embed schema.sql
var schemaSQL string

//go:embed pragmas.sql
var pragmasSQL string

var (
	ErrElementNotFound = errors.New("element not found")
	ErrFileNotFound    = errors.New("file not indexed")
)

// Index wraps a SQLite connection holding element metadata for any number
// of branches.
type Index struct {
	conn *sql.DB
	mu   sync.RWMutex
	path string
}

// Open opens or creates an index at dbPath. ":memory:" opens a private
// in-memory index.
func Open(dbPath string) (*Index, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own database.
		conn.SetMaxOpenConns(1)
	}

	for _, pragma := range strings.Split(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" || strings.HasPrefix(pragma, "--") {
			continue
		}
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Index{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (ix *Index) Close() error {
	return ix.conn.Close()
}

// Digest returns the content digest recorded for path.
func (ix *Index) Digest(branchID, path string) (string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var digest string
	err := ix.conn.QueryRow(
		`SELECT digest FROM files WHERE branch_id = ? AND path = ?`, branchID, path,
	).Scan(&digest)
	if err == sql.ErrNoRows {
		return "", ErrFileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying file digest: %w", err)
	}
	return digest, nil
}

// Current reports whether path is indexed from exactly content.
func (ix *Index) Current(branchID, path string, content []byte) bool {
	digest, err := ix.Digest(branchID, path)
	return err == nil && digest == util.Blake3HashHex(content)
}

// IndexFile replaces the elements recorded for path with elems.
func (ix *Index) IndexFile(branchID, path string, content []byte, elems []jsx.ElementMetadata) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM elements WHERE branch_id = ? AND path = ?`, branchID, path); err != nil {
		return fmt.Errorf("clearing elements: %w", err)
	}

	ins, err := tx.Prepare(`INSERT OR REPLACE INTO elements
		(branch_id, oid, path, tag_name, start_line, start_col, end_line, end_col, code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer ins.Close()

	for _, m := range elems {
		if _, err := ins.Exec(branchID, m.OID, path, m.TagName, m.StartLine, m.StartCol, m.EndLine, m.EndCol, m.Code); err != nil {
			return fmt.Errorf("inserting element %s: %w", m.OID, err)
		}
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO files (branch_id, path, digest, indexed_at) VALUES (?, ?, ?, ?)`,
		branchID, path, util.Blake3HashHex(content), time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("recording file: %w", err)
	}

	return tx.Commit()
}

// Lookup returns the metadata of oid.
func (ix *Index) Lookup(branchID, oid string) (*jsx.ElementMetadata, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	m := &jsx.ElementMetadata{OID: oid}
	err := ix.conn.QueryRow(
		`SELECT path, tag_name, start_line, start_col, end_line, end_col, code
		 FROM elements WHERE branch_id = ? AND oid = ?`, branchID, oid,
	).Scan(&m.Path, &m.TagName, &m.StartLine, &m.StartCol, &m.EndLine, &m.EndCol, &m.Code)
	if err == sql.ErrNoRows {
		return nil, ErrElementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying element: %w", err)
	}
	return m, nil
}

// OIDsForFile returns the oids indexed for path, sorted.
func (ix *Index) OIDsForFile(branchID, path string) ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	rows, err := ix.conn.Query(
		`SELECT oid FROM elements WHERE branch_id = ? AND path = ? ORDER BY oid`, branchID, path,
	)
	if err != nil {
		return nil, fmt.Errorf("querying elements: %w", err)
	}
	defer rows.Close()

	var oids []string
	for rows.Next() {
		var oid string
		if err := rows.Scan(&oid); err != nil {
			return nil, err
		}
		oids = append(oids, oid)
	}
	return oids, rows.Err()
}

// Files returns the indexed paths of a branch, sorted.
func (ix *Index) Files(branchID string) ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	rows, err := ix.conn.Query(`SELECT path FROM files WHERE branch_id = ? ORDER BY path`, branchID)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// RemoveFile drops path and its elements.
func (ix *Index) RemoveFile(branchID, path string) error {
	return ix.exec(
		stmt{`DELETE FROM elements WHERE branch_id = ? AND path = ?`, []any{branchID, path}},
		stmt{`DELETE FROM files WHERE branch_id = ? AND path = ?`, []any{branchID, path}},
	)
}

// RemoveDirectory drops every file under dir.
func (ix *Index) RemoveDirectory(branchID, dir string) error {
	prefix := strings.TrimSuffix(dir, "/") + "/%"
	return ix.exec(
		stmt{`DELETE FROM elements WHERE branch_id = ? AND path LIKE ?`, []any{branchID, prefix}},
		stmt{`DELETE FROM files WHERE branch_id = ? AND path LIKE ?`, []any{branchID, prefix}},
	)
}

// RenameFile moves the records of from to to, replacing any records of to.
func (ix *Index) RenameFile(branchID, from, to string) error {
	if from == to {
		return nil
	}
	return ix.exec(
		stmt{`DELETE FROM elements WHERE branch_id = ? AND path = ?`, []any{branchID, to}},
		stmt{`DELETE FROM files WHERE branch_id = ? AND path = ?`, []any{branchID, to}},
		stmt{`UPDATE elements SET path = ? WHERE branch_id = ? AND path = ?`, []any{to, branchID, from}},
		stmt{`UPDATE files SET path = ? WHERE branch_id = ? AND path = ?`, []any{to, branchID, from}},
	)
}

// Clear drops every record of a branch.
func (ix *Index) Clear(branchID string) error {
	return ix.exec(
		stmt{`DELETE FROM elements WHERE branch_id = ?`, []any{branchID}},
		stmt{`DELETE FROM files WHERE branch_id = ?`, []any{branchID}},
	)
}

type stmt struct {
	query string
	args  []any
}

// exec runs stmts in one transaction.
func (ix *Index) exec(stmts ...stmt) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, s := range stmts {
		if _, err := tx.Exec(s.query, s.args...); err != nil {
			return fmt.Errorf("executing %q: %w", s.query, err)
		}
	}
	return tx.Commit()
}
