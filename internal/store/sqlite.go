package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/reel-cli/internal/model"
)

// SQLiteStore implements Registry using modernc.org/sqlite. Updates within
// one process are serialised per run; the transaction makes each write atomic.
type SQLiteStore struct {
	db    *sql.DB
	locks *keyedMutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, locks: newKeyedMutex()}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	state      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_updated_at ON runs(updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Put(ctx context.Context, run *model.RunState) error {
	if run == nil || run.ID == "" {
		return eris.New("sqlite: run id is required")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, state, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), string(data), run.CreatedAt.UnixNano(), run.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return eris.Wrapf(ErrExists, "sqlite: put %s", run.ID)
		}
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.RunState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT state FROM runs WHERE id = ?`, id)
	run, err := scanState(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	return run, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn Mutator) (*model.RunState, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	run, err := scanState(tx.QueryRowContext(ctx, `SELECT state FROM runs WHERE id = ?`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update run %s", id)
	}
	next, err := applyMutator(run, fn)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(next)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, state = ?, updated_at = ? WHERE id = ?`,
		string(next.Status), string(data), next.UpdatedAt.UnixNano(), id,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: write run %s", id)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit")
	}
	return next, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter RunFilter) ([]*model.RunState, error) {
	query := `SELECT state FROM runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	out := []*model.RunState{}
	for rows.Next() {
		run, err := scanState(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		out = append(out, run)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE status IN (?, ?) AND updated_at < ?`,
		string(model.RunStatusCompleted), string(model.RunStatusFailed), cutoff.UnixNano(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired runs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanState(row scannable) (*model.RunState, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var run model.RunState
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, eris.Wrap(err, "decode run state")
	}
	return &run, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
