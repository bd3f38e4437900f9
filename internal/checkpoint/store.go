package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"sceneflow/internal/dbutil"
	"sceneflow/internal/scene"
	"sceneflow/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when schema.sql changes.
const schemaVersion = 1

const component = "checkpoint"

// Record marks one completed step for one scene under one workflow.
type Record struct {
	Workflow    string
	Key         string
	StepID      int
	Description string
	RecordedAt  time.Time
}

// Store persists step completion records in SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the checkpoint database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := dbutil.Open(ctx, path, dbutil.Schema{Name: component, SQL: schemaSQL, Version: schemaVersion})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// HasRun reports whether stepID completed for key under workflow.
func (s *Store) HasRun(ctx context.Context, workflow string, key scene.Key, stepID int) (bool, error) {
	if err := validateScope(workflow, key); err != nil {
		return false, err
	}
	var exists int
	err := dbutil.RetryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM step_checkpoints WHERE workflow_name = ? AND entity_key = ? AND step_id = ?)`,
			workflow, key.String(), stepID,
		).Scan(&exists)
	})
	if err != nil {
		return false, services.Wrap(services.ErrStorage, component, "has run", fmt.Sprintf("%s step %d", key, stepID), err)
	}
	return exists == 1, nil
}

// RecordComplete marks stepID complete. Recording an already completed step is a no-op.
func (s *Store) RecordComplete(ctx context.Context, workflow string, key scene.Key, stepID int, description string) error {
	if err := validateScope(workflow, key); err != nil {
		return err
	}
	return dbutil.WithTx(ctx, s.db, component, "record complete", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO step_checkpoints (workflow_name, entity_key, step_id, description, recorded_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (workflow_name, entity_key, step_id) DO NOTHING`,
			workflow, key.String(), stepID, strings.TrimSpace(description), dbutil.FormatTime(s.now()),
		)
		return err
	})
}

// ClearAll removes every record for key under workflow and returns the number removed.
func (s *Store) ClearAll(ctx context.Context, workflow string, key scene.Key) (int64, error) {
	if err := validateScope(workflow, key); err != nil {
		return 0, err
	}
	return dbutil.Exec(ctx, s.db, component, "clear all",
		`DELETE FROM step_checkpoints WHERE workflow_name = ? AND entity_key = ?`,
		workflow, key.String(),
	)
}

// List returns records ordered by workflow, key, and step id. Empty filters match everything.
func (s *Store) List(ctx context.Context, workflow, key string) ([]Record, error) {
	query := `SELECT workflow_name, entity_key, step_id, description, recorded_at FROM step_checkpoints`
	var (
		clauses []string
		args    []any
	)
	if workflow = strings.TrimSpace(workflow); workflow != "" {
		clauses = append(clauses, "workflow_name = ?")
		args = append(args, workflow)
	}
	if key = strings.TrimSpace(key); key != "" {
		clauses = append(clauses, "entity_key = ?")
		args = append(args, key)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY workflow_name, entity_key, step_id"

	var rows *sql.Rows
	err := dbutil.RetryOnBusy(ctx, func() error {
		var err error
		rows, err = s.db.QueryContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "list", "", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec      Record
			recorded string
		)
		if err := rows.Scan(&rec.Workflow, &rec.Key, &rec.StepID, &rec.Description, &recorded); err != nil {
			return nil, services.Wrap(services.ErrStorage, component, "list", "scan", err)
		}
		if ts, err := dbutil.ParseTime(recorded); err == nil {
			rec.RecordedAt = ts
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "list", "", err)
	}
	return records, nil
}

// DeleteWorkflow removes every record for workflow across all scenes.
func (s *Store) DeleteWorkflow(ctx context.Context, workflow string) (int64, error) {
	if strings.TrimSpace(workflow) == "" {
		return 0, services.Wrap(services.ErrValidation, component, "delete workflow", "workflow name required", nil)
	}
	return dbutil.Exec(ctx, s.db, component, "delete workflow",
		`DELETE FROM step_checkpoints WHERE workflow_name = ?`, workflow)
}

func validateScope(workflow string, key scene.Key) error {
	if strings.TrimSpace(workflow) == "" {
		return services.Wrap(services.ErrValidation, component, "validate", "workflow name required", nil)
	}
	return key.Validate()
}
