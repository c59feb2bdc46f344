// Package sqlitebackend implements recorder.BackendContract against a
// SQLite file, matching the logical schema an output query layer
// expects (spec §6): AgentEntry, AgentExit, Resources, Compositions,
// Products, Transactions, TransactedResources, and Info.
//
// The driver is selectable at build time: the default pure-Go
// modernc.org/sqlite needs no cgo, while the "cgo_sqlite" build tag
// swaps in mattn/go-sqlite3 for environments that prefer the
// battle-tested C library (grounded on the teacher's profile-driven
// connection-string builder in internal/database/db.go).
package sqlitebackend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/simkernel/internal/kernerr"
	"github.com/aristath/simkernel/internal/recorder"
	"github.com/rs/zerolog"
)

// Backend persists recorded rows into a single SQLite file, one table
// per Datum title, creating tables on first write with a generic
// (row_id, sim_id, payload) shape unless a fixed schema is requested.
type Backend struct {
	db   *sql.DB
	path string
	log  zerolog.Logger

	flatSchema bool
	known      map[string]bool
}

// Config controls how the backend opens and shapes its database.
type Config struct {
	Path string
	// FlatSchema stores every Datum field as its own column (matching
	// the named columns spec §6 lists) instead of one JSON payload
	// column. Column types are inferred from the first row written.
	FlatSchema bool
}

// New opens (creating if necessary) the SQLite file at cfg.Path with
// WAL mode and the kernel's balanced pragma profile.
func New(cfg Config, log zerolog.Logger) (*Backend, error) {
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, kernerr.New(kernerr.IOError, fmt.Errorf("resolve sqlite path: %w", err))
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, kernerr.New(kernerr.IOError, fmt.Errorf("create sqlite directory: %w", err))
	}

	connStr := absPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=cache_size(-64000)"

	conn, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, kernerr.New(kernerr.IOError, fmt.Errorf("open sqlite %s: %w", absPath, err))
	}
	conn.SetMaxOpenConns(1) // single-writer: the kernel is single-threaded
	conn.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, kernerr.New(kernerr.IOError, fmt.Errorf("ping sqlite %s: %w", absPath, err))
	}

	return &Backend{
		db:         conn,
		path:       absPath,
		log:        log.With().Str("component", "sqlitebackend").Logger(),
		flatSchema: cfg.FlatSchema,
		known:      make(map[string]bool),
	}, nil
}

var _ recorder.BackendContract = (*Backend)(nil)

func (b *Backend) Name() string { return "sqlite:" + b.path }

// Notify persists a batch of rows, creating the destination table on
// first sight of a new Datum title (spec §5, §6).
func (b *Backend) Notify(rows []recorder.Row) error {
	byTable := make(map[string][]recorder.Row)
	for _, r := range rows {
		byTable[r.Table] = append(byTable[r.Table], r)
	}
	for table, trows := range byTable {
		if err := b.writeTable(table, trows); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) writeTable(table string, rows []recorder.Row) error {
	if !b.known[table] {
		if err := b.ensureTable(table, rows[0]); err != nil {
			return err
		}
		b.known[table] = true
	}
	tx, err := b.db.Begin()
	if err != nil {
		return kernerr.New(kernerr.IOError, err)
	}
	for _, r := range rows {
		if err := b.insertRow(tx, table, r); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return kernerr.New(kernerr.IOError, err)
	}
	return nil
}

func (b *Backend) ensureTable(table string, sample recorder.Row) error {
	if b.flatSchema {
		cols := make([]string, 0, len(sample.Fields))
		for field, val := range sample.Fields {
			cols = append(cols, fmt.Sprintf("%q %s", field, sqlType(val)))
		}
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", table, join(cols, ", "))
		_, err := b.db.Exec(stmt)
		if err != nil {
			return kernerr.New(kernerr.IOError, fmt.Errorf("create table %s: %w", table, err))
		}
		return nil
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		row_id INTEGER PRIMARY KEY AUTOINCREMENT,
		sim_id TEXT NOT NULL,
		payload TEXT NOT NULL
	)`, table)
	if _, err := b.db.Exec(stmt); err != nil {
		return kernerr.New(kernerr.IOError, fmt.Errorf("create table %s: %w", table, err))
	}
	return nil
}

func (b *Backend) insertRow(tx *sql.Tx, table string, r recorder.Row) error {
	if b.flatSchema {
		cols := make([]string, 0, len(r.Fields))
		placeholders := make([]string, 0, len(r.Fields))
		vals := make([]interface{}, 0, len(r.Fields))
		for field, val := range r.Fields {
			cols = append(cols, fmt.Sprintf("%q", field))
			placeholders = append(placeholders, "?")
			vals = append(vals, val)
		}
		stmt := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", table, join(cols, ", "), join(placeholders, ", "))
		_, err := tx.Exec(stmt, vals...)
		if err != nil {
			return kernerr.New(kernerr.IOError, fmt.Errorf("insert into %s: %w", table, err))
		}
		return nil
	}
	payload, err := json.Marshal(r.Fields)
	if err != nil {
		return kernerr.New(kernerr.CastError, err)
	}
	simID, _ := r.Fields["SimID"].(string)
	_, err = tx.Exec(fmt.Sprintf("INSERT INTO %q (sim_id, payload) VALUES (?, ?)", table), simID, string(payload))
	if err != nil {
		return kernerr.New(kernerr.IOError, fmt.Errorf("insert into %s: %w", table, err))
	}
	return nil
}

// Flush is a no-op: every Notify batch is already committed in its own
// transaction.
func (b *Backend) Flush() error { return nil }

func (b *Backend) Close() error {
	if err := b.db.Close(); err != nil {
		return kernerr.New(kernerr.IOError, err)
	}
	return nil
}

// Query reads back every row of table, reconstructing each as a
// recorder.Row. Only the JSON-payload schema supports generic query;
// flat-schema tables require a hand-written reader per table (not
// needed by the introspection API's current read paths).
func (b *Backend) Query(table string) ([]recorder.Row, error) {
	if b.flatSchema {
		return nil, kernerr.Newf(kernerr.KeyError, "flat-schema query of %q is not supported generically", table)
	}
	rows, err := b.db.Query(fmt.Sprintf("SELECT sim_id, payload FROM %q ORDER BY row_id", table))
	if err != nil {
		return nil, kernerr.New(kernerr.IOError, err)
	}
	defer rows.Close()

	var out []recorder.Row
	for rows.Next() {
		var simID, payload string
		if err := rows.Scan(&simID, &payload); err != nil {
			return nil, kernerr.New(kernerr.IOError, err)
		}
		var fields map[string]interface{}
		if err := json.Unmarshal([]byte(payload), &fields); err != nil {
			return nil, kernerr.New(kernerr.CastError, err)
		}
		out = append(out, recorder.Row{Table: table, Fields: fields})
	}
	return out, rows.Err()
}

func sqlType(v interface{}) string {
	switch v.(type) {
	case int, int64, int32:
		return "INTEGER"
	case float32, float64:
		return "REAL"
	default:
		return "TEXT"
	}
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
