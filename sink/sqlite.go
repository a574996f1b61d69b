package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alexshd/biasgen"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT    NOT NULL,
	op          TEXT    NOT NULL,
	seed        INTEGER NOT NULL,
	iterations  INTEGER NOT NULL,
	state       TEXT    NOT NULL DEFAULT 'RUNNING',
	emitted     INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	draws       INTEGER NOT NULL DEFAULT 0,
	digest      TEXT    NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS instances (
	run_id    INTEGER NOT NULL REFERENCES runs(id),
	iteration INTEGER NOT NULL,
	op        TEXT    NOT NULL,
	trailer   TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, iteration)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS bindings (
	run_id    INTEGER NOT NULL,
	iteration INTEGER NOT NULL,
	position  INTEGER NOT NULL,
	slot      TEXT    NOT NULL,
	register  TEXT    NOT NULL DEFAULT '',
	value     INTEGER NOT NULL,
	PRIMARY KEY (run_id, iteration, position)
) WITHOUT ROWID;
`

// ErrBatchDropped is returned when a buffered batch could not be written.
// The batch is discarded.
var ErrBatchDropped = errors.New("sink: batch dropped")

// DefaultBatchSize is the number of instances buffered before a SQLite sink
// writes a transaction.
const DefaultBatchSize = 1000

// DB is a regression database. Runs writing to the same DB from parallel
// runners are serialized per batch.
type DB struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenDB opens (creating if needed) the SQLite database at path and applies
// the schema.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := configureDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

func configureDatabase(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// RunInfo describes a run when it is registered.
type RunInfo struct {
	Name       string
	Op         string
	Seed       uint64
	Iterations uint64
}

// BeginRun registers a run and returns its id.
func (d *DB) BeginRun(ctx context.Context, info RunInfo) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.db.ExecContext(ctx,
		`INSERT INTO runs (name, op, seed, iterations, started_at) VALUES (?, ?, ?, ?, ?)`,
		info.Name, info.Op, int64(info.Seed), int64(info.Iterations), time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("register run %s: %w", info.Name, err)
	}
	return res.LastInsertId()
}

// FinishRun stores the outcome of a run.
func (d *DB) FinishRun(ctx context.Context, id int64, res biasgen.Result, digest string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, emitted = ?, skipped = ?, draws = ?, digest = ?, finished_at = ? WHERE id = ?`,
		string(res.State), int64(res.Emitted), int64(res.Skipped), int64(res.Draws), digest, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", id, err)
	}
	return nil
}

// StoredRun is a row of the runs table.
type StoredRun struct {
	ID         int64
	Name       string
	Op         string
	Seed       uint64
	Iterations uint64
	State      biasgen.RunState
	Emitted    uint64
	Skipped    uint64
	Digest     string
}

// Run loads a run by id.
func (d *DB) Run(ctx context.Context, id int64) (StoredRun, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		r                             StoredRun
		seed, iters, emitted, skipped int64
		state                         string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, op, seed, iterations, state, emitted, skipped, digest FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &r.Op, &seed, &iters, &state, &emitted, &skipped, &r.Digest)
	if err != nil {
		return r, fmt.Errorf("load run %d: %w", id, err)
	}
	r.Seed, r.Iterations = uint64(seed), uint64(iters)
	r.Emitted, r.Skipped = uint64(emitted), uint64(skipped)
	r.State = biasgen.RunState(state)
	return r, nil
}

// Instances loads the instances of a run in iteration order. Values come
// back as their 64-bit two's complement pattern.
func (d *DB) Instances(ctx context.Context, runID int64) ([]biasgen.Instance[int64], error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT i.iteration, i.op, i.trailer, b.slot, b.register, b.value
		FROM instances i JOIN bindings b ON b.run_id = i.run_id AND b.iteration = i.iteration
		WHERE i.run_id = ?
		ORDER BY i.iteration, b.position`, runID)
	if err != nil {
		return nil, fmt.Errorf("load instances of run %d: %w", runID, err)
	}
	defer rows.Close()

	var out []biasgen.Instance[int64]
	for rows.Next() {
		var (
			iter    int64
			op      string
			trailer string
			b       biasgen.Binding[int64]
		)
		if err := rows.Scan(&iter, &op, &trailer, &b.Slot, &b.Register, &b.Value); err != nil {
			return out, err
		}
		if n := len(out); n == 0 || out[n-1].Iteration != uint64(iter) {
			inst := biasgen.Instance[int64]{Iteration: uint64(iter), Op: op}
			if trailer != "" {
				inst.Trailer = strings.Split(trailer, ";")
			}
			out = append(out, inst)
		}
		last := &out[len(out)-1]
		last.Bindings = append(last.Bindings, b)
	}
	return out, rows.Err()
}

// SQLite records every instance of one run into a DB.
type SQLite[T biasgen.Integer] struct {
	db      *DB
	runID   int64
	batch   int
	pending []biasgen.Instance[T]
}

// NewSQLite returns an emitter writing to the run runID of db. batch <= 0
// uses DefaultBatchSize. Call Flush when the run is done.
//
// Instances are buffered, so a write error surfaces on the Emit that closes
// the batch and the whole batch is lost (ErrBatchDropped). Use a batch of 1
// when every emission must be accounted for individually, e.g. under
// biasgen.OnErrorSkip.
func NewSQLite[T biasgen.Integer](db *DB, runID int64, batch int) *SQLite[T] {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &SQLite[T]{db: db, runID: runID, batch: batch}
}

// RunID returns the run this sink writes to.
func (s *SQLite[T]) RunID() int64 { return s.runID }

// Emit implements biasgen.Emitter.
func (s *SQLite[T]) Emit(ctx context.Context, inst biasgen.Instance[T]) error {
	s.pending = append(s.pending, inst)
	if len(s.pending) < s.batch {
		return nil
	}
	return s.flush(ctx)
}

// Flush writes buffered instances.
func (s *SQLite[T]) Flush(ctx context.Context) error { return s.flush(ctx) }

func (s *SQLite[T]) flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	// A failed batch is dropped, never retried by a later Emit.
	batch := s.pending
	s.pending = s.pending[:0]

	if err := s.write(ctx, batch); err != nil {
		return fmt.Errorf("%w: iterations %d..%d (%d instances): %w",
			ErrBatchDropped, batch[0].Iteration, batch[len(batch)-1].Iteration, len(batch), err)
	}
	return nil
}

func (s *SQLite[T]) write(ctx context.Context, batch []biasgen.Instance[T]) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insInst, err := tx.PrepareContext(ctx,
		`INSERT INTO instances (run_id, iteration, op, trailer) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insInst.Close()

	insBind, err := tx.PrepareContext(ctx,
		`INSERT INTO bindings (run_id, iteration, position, slot, register, value) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insBind.Close()

	for _, inst := range batch {
		iter := int64(inst.Iteration)
		if _, err := insInst.ExecContext(ctx, s.runID, iter, inst.Op, strings.Join(inst.Trailer, ";")); err != nil {
			return fmt.Errorf("store instance %d: %w", inst.Iteration, err)
		}
		for pos, b := range inst.Bindings {
			if _, err := insBind.ExecContext(ctx, s.runID, iter, pos, b.Slot, b.Register, int64(uint64(b.Value))); err != nil {
				return fmt.Errorf("store binding %s of instance %d: %w", b.Slot, inst.Iteration, err)
			}
		}
	}

	return tx.Commit()
}
