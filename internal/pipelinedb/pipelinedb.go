// Package pipelinedb implements the pipeline-definition repository:
// CRUD over named Pipeline definitions backed by sqlite, with
// soft-delete (archive) and a referential-integrity guard that refuses
// hard delete while a pipeline still has recorded runs.
package pipelinedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kenneth/adapipe/internal/pipeline"
	"github.com/kenneth/adapipe/internal/pipelineerr"
	"github.com/kenneth/adapipe/internal/stage"
)

const schema = `
CREATE TABLE IF NOT EXISTS pipelines (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	stages_json TEXT NOT NULL,
	archived INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id TEXT PRIMARY KEY,
	pipeline_id TEXT NOT NULL REFERENCES pipelines(id),
	started_at TEXT NOT NULL,
	outcome TEXT NOT NULL
);
`

// Repository is a sqlite-backed store of Pipeline definitions.
type Repository struct {
	db *sql.DB
}

// Open connects to (creating if absent) the sqlite database at path and
// ensures the schema exists. path defaults to "./pipeline.db" when
// empty, per ADAPIPE_SQLITE_PATH's documented fallback.
func Open(path string) (*Repository, error) {
	if path == "" {
		path = "./pipeline.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.DatabaseError, "pipelinedb", fmt.Errorf("open %s: %w", path, err))
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, pipelineerr.New(pipelineerr.DatabaseError, "pipelinedb", fmt.Errorf("apply schema: %w", err))
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error { return r.db.Close() }

// Create persists a new pipeline definition.
func (r *Repository) Create(ctx context.Context, p *pipeline.Pipeline) error {
	stagesJSON, err := json.Marshal(p.Stages)
	if err != nil {
		return pipelineerr.New(pipelineerr.SerializationError, "pipelinedb", fmt.Errorf("marshal stages: %w", err))
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO pipelines (id, name, stages_json, archived, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)`,
		p.ID, p.Name, string(stagesJSON), now, now,
	)
	if err != nil {
		return pipelineerr.New(pipelineerr.DatabaseError, "pipelinedb", fmt.Errorf("insert pipeline %s: %w", p.ID, err))
	}
	return nil
}

// Get loads a pipeline by id, archived or not.
func (r *Repository) Get(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, stages_json, archived FROM pipelines WHERE id = ?`, id)
	var (
		pid, name, stagesJSON string
		archived              int
	)
	if err := row.Scan(&pid, &name, &stagesJSON, &archived); err != nil {
		if err == sql.ErrNoRows {
			return nil, pipelineerr.New(pipelineerr.PipelineNotFound, "pipelinedb", fmt.Errorf("pipeline %s not found", id))
		}
		return nil, pipelineerr.New(pipelineerr.DatabaseError, "pipelinedb", fmt.Errorf("query pipeline %s: %w", id, err))
	}
	var stages []stage.Stage
	if err := json.Unmarshal([]byte(stagesJSON), &stages); err != nil {
		return nil, pipelineerr.New(pipelineerr.SerializationError, "pipelinedb", fmt.Errorf("unmarshal stages for %s: %w", id, err))
	}
	return &pipeline.Pipeline{ID: pid, Name: name, Stages: stages, Archived: archived != 0}, nil
}

// List returns every non-archived pipeline, unless includeArchived is set.
func (r *Repository) List(ctx context.Context, includeArchived bool) ([]*pipeline.Pipeline, error) {
	query := `SELECT id, name, stages_json, archived FROM pipelines`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.DatabaseError, "pipelinedb", fmt.Errorf("list pipelines: %w", err))
	}
	defer rows.Close()

	var out []*pipeline.Pipeline
	for rows.Next() {
		var (
			pid, name, stagesJSON string
			archived              int
		)
		if err := rows.Scan(&pid, &name, &stagesJSON, &archived); err != nil {
			return nil, pipelineerr.New(pipelineerr.DatabaseError, "pipelinedb", fmt.Errorf("scan pipeline row: %w", err))
		}
		var stages []stage.Stage
		if err := json.Unmarshal([]byte(stagesJSON), &stages); err != nil {
			return nil, pipelineerr.New(pipelineerr.SerializationError, "pipelinedb", fmt.Errorf("unmarshal stages for %s: %w", pid, err))
		}
		out = append(out, &pipeline.Pipeline{ID: pid, Name: name, Stages: stages, Archived: archived != 0})
	}
	return out, rows.Err()
}

// Archive soft-deletes a pipeline: it remains readable but unusable
// for new runs.
func (r *Repository) Archive(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE pipelines SET archived = 1, updated_at = ? WHERE id = ?`, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return pipelineerr.New(pipelineerr.DatabaseError, "pipelinedb", fmt.Errorf("archive pipeline %s: %w", id, err))
	}
	return checkRowsAffected(res, id)
}

// Delete hard-deletes a pipeline, refusing if any run record still
// references it (referential-integrity guard).
func (r *Repository) Delete(ctx context.Context, id string) error {
	var runCount int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_runs WHERE pipeline_id = ?`, id).Scan(&runCount); err != nil {
		return pipelineerr.New(pipelineerr.DatabaseError, "pipelinedb", fmt.Errorf("count runs for %s: %w", id, err))
	}
	if runCount > 0 {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "pipelinedb", fmt.Errorf("pipeline %s has %d recorded runs; archive instead of deleting", id, runCount))
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM pipelines WHERE id = ?`, id)
	if err != nil {
		return pipelineerr.New(pipelineerr.DatabaseError, "pipelinedb", fmt.Errorf("delete pipeline %s: %w", id, err))
	}
	return checkRowsAffected(res, id)
}

// RecordRun appends a run outcome, used by Delete's referential-integrity check.
func (r *Repository) RecordRun(ctx context.Context, runID, pipelineID, outcome string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (run_id, pipeline_id, started_at, outcome) VALUES (?, ?, ?, ?)`,
		runID, pipelineID, time.Now().UTC().Format(time.RFC3339), outcome,
	)
	if err != nil {
		return pipelineerr.New(pipelineerr.DatabaseError, "pipelinedb", fmt.Errorf("record run %s: %w", runID, err))
	}
	return nil
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return pipelineerr.New(pipelineerr.DatabaseError, "pipelinedb", fmt.Errorf("rows affected for %s: %w", id, err))
	}
	if n == 0 {
		return pipelineerr.New(pipelineerr.PipelineNotFound, "pipelinedb", fmt.Errorf("pipeline %s not found", id))
	}
	return nil
}
