package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it too.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Registry using pgxpool. Update takes a row lock,
// so concurrent writers on several replicas are serialised per run.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var preparedStatements = map[string]string{
	"insert_run":  `INSERT INTO runs (id, status, state, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"get_run":     `SELECT state FROM runs WHERE id = $1`,
	"lock_run":    `SELECT state FROM runs WHERE id = $1 FOR UPDATE`,
	"write_run":   `UPDATE runs SET status = $1, state = $2, updated_at = $3 WHERE id = $4`,
	"expire_runs": `DELETE FROM runs WHERE status IN ($1, $2) AND updated_at < $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'pending',
	state      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status_updated ON runs(status, updated_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, run *model.RunState) error {
	if run == nil || run.ID == "" {
		return eris.New("postgres: run id is required")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, state, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(run.Status), data, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return eris.Wrapf(ErrExists, "postgres: put %s", run.ID)
		}
		return eris.Wrapf(err, "postgres: insert run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.RunState, error) {
	run, err := scanJSONB(s.pool.QueryRow(ctx, `SELECT state FROM runs WHERE id = $1`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return run, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, fn Mutator) (*model.RunState, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	run, err := scanJSONB(tx.QueryRow(ctx, `SELECT state FROM runs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update run %s", id)
	}
	next, err := applyMutator(run, fn)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(next)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal run")
	}
	if _, err := tx.Exec(ctx,
		`UPDATE runs SET status = $1, state = $2, updated_at = $3 WHERE id = $4`,
		string(next.Status), data, next.UpdatedAt, id,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: write run %s", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit")
	}
	return next, nil
}

func (s *PostgresStore) List(ctx context.Context, filter RunFilter) ([]*model.RunState, error) {
	query := `SELECT state FROM runs`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` WHERE status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	out := []*model.RunState{}
	for rows.Next() {
		run, err := scanJSONB(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		out = append(out, run)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM runs WHERE status IN ($1, $2) AND updated_at < $3`,
		string(model.RunStatusCompleted), string(model.RunStatusFailed), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired runs")
	}
	return int(tag.RowsAffected()), nil
}

func scanJSONB(row scannable) (*model.RunState, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var run model.RunState
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, eris.Wrap(err, "decode run state")
	}
	return &run, nil
}
