// Package ledger records pipeline runs in SQLite so that two runs can be
// compared file by file.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/babelpatch/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started INTEGER NOT NULL,
	manifest TEXT NOT NULL,
	upstream TEXT NOT NULL,
	work TEXT NOT NULL,
	state TEXT NOT NULL,
	diagnostics JSON
);

CREATE TABLE IF NOT EXISTS run_files (
	run_id INTEGER NOT NULL,
	path TEXT NOT NULL,
	sha256 TEXT NOT NULL,
	PRIMARY KEY (run_id, path)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS rule_hits (
	run_id INTEGER NOT NULL,
	rule TEXT NOT NULL,
	hits INTEGER NOT NULL,
	PRIMARY KEY (run_id, rule)
) WITHOUT ROWID;
`

// Run is one recorded pipeline invocation.
type Run struct {
	ID       int64
	Started  time.Time
	Manifest string
	Upstream string
	Work     string
	State    string
	// Files maps working-tree paths to hex sha256 digests.
	Files       map[string]string
	Hits        map[string]int
	Diagnostics []logging.Diagnostic
}

// Change is a path whose digest differs between two runs. An empty side
// means the file is absent from that run.
type Change struct {
	Path   string
	Before string
	After  string
}

type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record stores r in one transaction and returns its id.
func (l *Ledger) Record(r Run) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	diags, err := json.Marshal(r.Diagnostics)
	if err != nil {
		return 0, err
	}

	tx, err := l.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(
		`INSERT INTO runs (started, manifest, upstream, work, state, diagnostics) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Started.UnixNano(), r.Manifest, r.Upstream, r.Work, r.State, diags,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmtFile, err := tx.Prepare(`INSERT INTO run_files (run_id, path, sha256) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmtFile.Close() }()
	for p, sum := range r.Files {
		if _, err := stmtFile.Exec(id, p, sum); err != nil {
			return 0, fmt.Errorf("insert file %s: %w", p, err)
		}
	}

	stmtHit, err := tx.Prepare(`INSERT INTO rule_hits (run_id, rule, hits) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmtHit.Close() }()
	for rule, n := range r.Hits {
		if _, err := stmtHit.Exec(id, rule, n); err != nil {
			return 0, fmt.Errorf("insert hits %s: %w", rule, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// Runs lists recorded runs, oldest first, without files or hits.
func (l *Ledger) Runs() ([]Run, error) {
	rows, err := l.db.Query(`SELECT id, started, manifest, upstream, work, state, diagnostics FROM runs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			started int64
			diags   []byte
		)
		if err := rows.Scan(&r.ID, &started, &r.Manifest, &r.Upstream, &r.Work, &r.State, &diags); err != nil {
			return nil, err
		}
		r.Started = time.Unix(0, started)
		if len(diags) > 0 {
			if err := json.Unmarshal(diags, &r.Diagnostics); err != nil {
				return nil, fmt.Errorf("run %d diagnostics: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Latest returns the ids of the newest n runs, newest first.
func (l *Ledger) Latest(n int) ([]int64, error) {
	rows, err := l.db.Query(`SELECT id FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Files returns the digests recorded for run id.
func (l *Ledger) Files(id int64) (map[string]string, error) {
	rows, err := l.db.Query(`SELECT path, sha256 FROM run_files WHERE run_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var p, sum string
		if err := rows.Scan(&p, &sum); err != nil {
			return nil, err
		}
		out[p] = sum
	}
	return out, rows.Err()
}

// Hits returns the per-rule hit counts recorded for run id.
func (l *Ledger) Hits(id int64) (map[string]int, error) {
	rows, err := l.db.Query(`SELECT rule, hits FROM rule_hits WHERE run_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var rule string
		var n int
		if err := rows.Scan(&rule, &n); err != nil {
			return nil, err
		}
		out[rule] = n
	}
	return out, rows.Err()
}

// Compare lists files that differ between runs a and b, sorted by path.
// Two runs of the same manifest over the same upstream compare empty.
func (l *Ledger) Compare(a, b int64) ([]Change, error) {
	before, err := l.Files(a)
	if err != nil {
		return nil, err
	}
	after, err := l.Files(b)
	if err != nil {
		return nil, err
	}

	var out []Change
	for p, sum := range before {
		if after[p] != sum {
			out = append(out, Change{Path: p, Before: sum, After: after[p]})
		}
	}
	for p, sum := range after {
		if _, ok := before[p]; !ok {
			out = append(out, Change{Path: p, After: sum})
		}
	}
	slices.SortFunc(out, func(x, y Change) int { return strings.Compare(x.Path, y.Path) })
	return out, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
