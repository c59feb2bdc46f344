// Package recorder implements the Datum/Recorder pattern (spec §5):
// archetypes and kernel components build typed rows via NewDatum, and
// the Recorder fans completed rows out to every registered
// BackendContract in fixed-size batches.
package recorder

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Val is a single named column value within a Datum.
type Val struct {
	Field string
	Value interface{}
}

// Datum is an in-progress row builder for a named table (spec §5). Call
// AddVal repeatedly, then Record to hand the finished row to the
// Recorder.
type Datum struct {
	rec   *Recorder
	title string
	vals  []Val
}

// AddVal appends a column to the datum and returns it for chaining,
// mirroring the teacher's builder style (e.g. zerolog's event chain).
func (d *Datum) AddVal(field string, value interface{}) *Datum {
	d.vals = append(d.vals, Val{Field: field, Value: value})
	return d
}

// Record hands the finished datum to the owning Recorder for
// batching/flush.
func (d *Datum) Record() {
	d.rec.record(d)
}

// Row is the backend-facing flattened form of a Datum.
type Row struct {
	Table  string
	Fields map[string]interface{}
}

// BackendContract is the sink interface every storage/streaming backend
// implements (spec §5, §6): SQLite, S3 archival, websocket live-stream.
type BackendContract interface {
	Name() string
	Notify(rows []Row) error
	Flush() error
	Close() error
	// Query returns every recorded row for table, for backends that
	// support read-back (e.g. the HTTP introspection API against the
	// SQLite backend). Backends that are write-only (S3, websocket) may
	// return a KeyError-kinded error via kernerr.
	Query(table string) ([]Row, error)
}

// Recorder owns the simulation's UUID, the set of registered backends,
// and the per-table batch buffers flushed once they reach dumpCount
// rows (spec §5).
type Recorder struct {
	mu        sync.Mutex
	simID     uuid.UUID
	backends  []BackendContract
	dumpCount int
	buffers   map[string][]Row
	log       zerolog.Logger
	detached  map[string]bool // backends that errored and were detached
}

// New creates a Recorder for one simulation run, tagging every row with
// a freshly generated simulation UUID.
func New(dumpCount int, log zerolog.Logger) *Recorder {
	if dumpCount <= 0 {
		dumpCount = 1
	}
	return &Recorder{
		simID:     uuid.New(),
		dumpCount: dumpCount,
		buffers:   make(map[string][]Row),
		detached:  make(map[string]bool),
		log:       log.With().Str("component", "recorder").Logger(),
	}
}

// SimID returns the run-wide simulation identifier tagged onto every
// recorded row and exposed by the HTTP introspection API.
func (r *Recorder) SimID() uuid.UUID { return r.simID }

// RegisterBackend adds a sink that will receive every future Notify
// batch. Backends registered after rows have already been flushed do
// not receive historical data, matching the teacher's subscribe-from-now
// event bus semantics.
func (r *Recorder) RegisterBackend(b BackendContract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, b)
	r.log.Debug().Str("backend", b.Name()).Msg("backend registered")
}

// NewDatum starts a new row builder for table.
func (r *Recorder) NewDatum(table string) *Datum {
	return &Datum{rec: r, title: table}
}

func (r *Recorder) record(d *Datum) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fields := make(map[string]interface{}, len(d.vals)+1)
	for _, v := range d.vals {
		fields[v.Field] = v.Value
	}
	fields["SimID"] = r.simID.String()

	r.buffers[d.title] = append(r.buffers[d.title], Row{Table: d.title, Fields: fields})
	if len(r.buffers[d.title]) >= r.dumpCount {
		r.flushTableLocked(d.title)
	}
}

// Flush forces every buffered table out to the backends regardless of
// dumpCount, used at Close and by explicit checkpoints (spec §5).
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for table := range r.buffers {
		r.flushTableLocked(table)
	}
	for _, b := range r.backends {
		if r.detached[b.Name()] {
			continue
		}
		if err := b.Flush(); err != nil {
			r.log.Error().Err(err).Str("backend", b.Name()).Msg("backend flush failed, detaching")
			r.detached[b.Name()] = true
		}
	}
	return nil
}

func (r *Recorder) flushTableLocked(table string) {
	rows := r.buffers[table]
	if len(rows) == 0 {
		return
	}
	delete(r.buffers, table)
	for _, b := range r.backends {
		if r.detached[b.Name()] {
			continue
		}
		if err := b.Notify(rows); err != nil {
			// A single misbehaving backend (e.g. a dropped websocket)
			// must not stop the simulation or the other sinks
			// (spec §5 failure isolation).
			r.log.Error().Err(err).Str("backend", b.Name()).Str("table", table).Msg("backend notify failed, detaching")
			r.detached[b.Name()] = true
		}
	}
}

// Close flushes every backend and closes it. Errors from individual
// backends are logged, not returned, so Close never prevents the rest
// from shutting down cleanly.
func (r *Recorder) Close() error {
	_ = r.Flush()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.backends {
		if err := b.Close(); err != nil {
			r.log.Error().Err(err).Str("backend", b.Name()).Msg("backend close failed")
		}
	}
	return nil
}

// Query reads back every row of table from the first backend that
// supports queries (spec §6 introspection API).
func (r *Recorder) Query(table string) ([]Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lastErr error
	for _, b := range r.backends {
		if r.detached[b.Name()] {
			continue
		}
		rows, err := b.Query(table)
		if err == nil {
			return rows, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
