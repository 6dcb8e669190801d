package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"robotcore/workflow"
)

// RunRecorder persists finished runs for one device. It is a
// workflow.RunSink.
type RunRecorder struct {
	db       *DB
	deviceID string
}

func (db *DB) RunRecorder(deviceID string) *RunRecorder {
	return &RunRecorder{db: db, deviceID: deviceID}
}

func (r *RunRecorder) RecordRun(ctx context.Context, run *workflow.Run) error {
	return r.db.InsertRun(ctx, r.deviceID, run)
}

var _ workflow.RunSink = (*RunRecorder)(nil)

func (db *DB) InsertRun(ctx context.Context, deviceID string, run *workflow.Run) error {
	inputs, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("encode run inputs: %w", err)
	}
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("encode run steps: %w", err)
	}
	_, err = db.ExecContext(ctx, db.Q(`INSERT INTO workflow_runs
		(id, device_id, template_id, status, success, error, inputs, steps, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, deviceID, run.TemplateID, string(run.Status), run.Success, run.Error,
		string(inputs), string(steps), run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

const runSelectCols = `id, template_id, status, success, error, inputs, steps, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (*workflow.Run, error) {
	var run workflow.Run
	var status, inputs, steps string
	var started, finished any
	if err := row.Scan(&run.ID, &run.TemplateID, &status, &run.Success, &run.Error,
		&inputs, &steps, &started, &finished); err != nil {
		return nil, err
	}
	run.Status = workflow.Status(status)
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	if err := json.Unmarshal([]byte(inputs), &run.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs of run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(steps), &run.Steps); err != nil {
		return nil, fmt.Errorf("decode steps of run %s: %w", run.ID, err)
	}
	return &run, nil
}

func (db *DB) GetRun(ctx context.Context, id string) (*workflow.Run, error) {
	run, err := scanRun(db.QueryRowContext(ctx, db.Q(`SELECT `+runSelectCols+` FROM workflow_runs WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs of a device, newest first.
func (db *DB) ListRuns(ctx context.Context, deviceID string, limit int) ([]*workflow.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, db.Q(`SELECT `+runSelectCols+` FROM workflow_runs
		WHERE device_id = ? ORDER BY started_at DESC LIMIT ?`), deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*workflow.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
