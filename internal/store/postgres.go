package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"robustroute/internal/apperr"
	"robustroute/internal/model"
)

//go:embed schema.sql
var schemaSQL string

type Postgres struct {
	db *sql.DB
}

// PoolOptions bounds the connection pool; zero values keep database/sql defaults.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func NewPostgres(dsn string, po PoolOptions) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if po.MaxOpenConns > 0 {
		db.SetMaxOpenConns(po.MaxOpenConns)
	}
	if po.MaxIdleConns > 0 {
		db.SetMaxIdleConns(po.MaxIdleConns)
	}
	if po.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(po.ConnMaxLifetime)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(err, apperr.CodeDatabaseError, "postgres: ping")
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return apperr.Wrap(err, apperr.CodeDatabaseError, "postgres: migrate")
		}
	}
	return nil
}

func splitStatements(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) SaveSolution(ctx context.Context, ex model.Exchange) (model.StoredSolution, error) {
	if ex.Version == 0 {
		ex.Version = model.ExchangeVersion
	}
	b, err := json.Marshal(ex)
	if err != nil {
		return model.StoredSolution{}, fmt.Errorf("encode exchange: %w", err)
	}
	s := model.StoredSolution{ID: uuid.New().String(), Exchange: ex}
	err = p.db.QueryRowContext(ctx, `INSERT INTO solutions (id, dataset, algorithm, exchange) VALUES ($1,$2,$3,$4) RETURNING created_at`,
		s.ID, nullIfEmpty(ex.Dataset), ex.Algorithm, b).Scan(&s.CreatedAt)
	if err != nil {
		return model.StoredSolution{}, apperr.Wrap(err, apperr.CodeDatabaseError, "insert solution")
	}
	return s, nil
}

func (p *Postgres) GetSolution(ctx context.Context, id string) (model.StoredSolution, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.StoredSolution{}, notFound("solution", id)
	}
	var (
		s   = model.StoredSolution{ID: id}
		raw []byte
	)
	err := p.db.QueryRowContext(ctx, `SELECT exchange, created_at FROM solutions WHERE id=$1`, id).Scan(&raw, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StoredSolution{}, notFound("solution", id)
	}
	if err != nil {
		return model.StoredSolution{}, apperr.Wrap(err, apperr.CodeDatabaseError, "select solution")
	}
	if err := json.Unmarshal(raw, &s.Exchange); err != nil {
		return model.StoredSolution{}, fmt.Errorf("decode exchange %s: %w", id, err)
	}
	return s, nil
}

func (p *Postgres) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = model.RunRunning
	}
	run.FinishedAt = nil
	err := p.db.QueryRowContext(ctx, `INSERT INTO runs (id, dataset, algorithm, status, solution_id, initial_cost) VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (id) DO NOTHING RETURNING created_at`,
		run.ID, nullIfEmpty(run.Dataset), run.Algorithm, run.Status, nullIfEmpty(run.SolutionID), run.InitialCost).Scan(&run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, apperr.InvalidInput("runId", "already used")
	}
	if err != nil {
		return model.Run{}, apperr.Wrap(err, apperr.CodeDatabaseError, "insert run")
	}
	return run, nil
}

func (p *Postgres) FinishRun(ctx context.Context, id string, f RunFinish) (model.Run, error) {
	if !validStatus(f.Status) {
		return model.Run{}, apperr.InvalidInput("status", "must be a terminal run status")
	}
	res, err := p.db.ExecContext(ctx, `UPDATE runs SET status=$2, solution_id=COALESCE($3, solution_id), best_cost=$4,
        route_end_e=$5, route_end_p=$6, result=$7, error=$8, finished_at=now() WHERE id=$1`,
		id, f.Status, nullIfEmpty(f.SolutionID), f.BestCost, pq.Array(f.RouteEndE), pq.Array(f.RouteEndP), nullJSON(f.Result), nullIfEmpty(f.Error))
	if err != nil {
		return model.Run{}, apperr.Wrap(err, apperr.CodeDatabaseError, "update run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Run{}, notFound("run", id)
	}
	return p.GetRun(ctx, id)
}

const runColumns = `id::text, COALESCE(dataset,''), algorithm, status, COALESCE(solution_id::text,''), initial_cost, best_cost,
    route_end_e, route_end_p, result, COALESCE(error,''), created_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(rs rowScanner) (model.Run, error) {
	var (
		r          model.Run
		endE, endP pq.Float64Array
		result     []byte
		finished   sql.NullTime
	)
	err := rs.Scan(&r.ID, &r.Dataset, &r.Algorithm, &r.Status, &r.SolutionID, &r.InitialCost, &r.BestCost,
		&endE, &endP, &result, &r.Error, &r.CreatedAt, &finished)
	if err != nil {
		return model.Run{}, err
	}
	r.RouteEndE = []float64(endE)
	r.RouteEndP = []float64(endP)
	if len(result) > 0 {
		r.Result = json.RawMessage(result)
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

func (p *Postgres) GetRun(ctx context.Context, id string) (model.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Run{}, notFound("run", id)
	}
	r, err := scanRun(p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, notFound("run", id)
	}
	if err != nil {
		return model.Run{}, apperr.Wrap(err, apperr.CodeDatabaseError, "select run")
	}
	return r, nil
}

// ListRuns returns matching runs, newest first.
func (p *Postgres) ListRuns(ctx context.Context, f RunFilter) ([]model.Run, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs
        WHERE ($1 = '' OR dataset = $1) AND ($2 = '' OR algorithm = $2)
        ORDER BY created_at DESC, id LIMIT $3`, f.Dataset, f.Algorithm, f.limit())
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeDatabaseError, "list runs")
	}
	defer rows.Close()
	out := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeDatabaseError, "scan run")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
