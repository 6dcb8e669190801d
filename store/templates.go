package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"robotcore/workflow"
)

// SaveTemplate stores a template as a JSON document keyed by its id.
func (db *DB) SaveTemplate(t workflow.Template) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode template %s: %w", t.ID, err)
	}
	_, err = db.Exec(db.Q(`INSERT INTO workflow_templates (id, name, body) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name=excluded.name, body=excluded.body, updated_at=CURRENT_TIMESTAMP`),
		t.ID, t.Name, string(body))
	if err != nil {
		return fmt.Errorf("save template %s: %w", t.ID, err)
	}
	return nil
}

func (db *DB) GetTemplate(id string) (workflow.Template, error) {
	var t workflow.Template
	var body string
	err := db.QueryRow(db.Q(`SELECT body FROM workflow_templates WHERE id = ?`), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return t, err
	}
	return t, json.Unmarshal([]byte(body), &t)
}

func (db *DB) ListTemplates(ctx context.Context) ([]workflow.Template, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, body FROM workflow_templates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []workflow.Template
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		var t workflow.Template
		if err := json.Unmarshal([]byte(body), &t); err != nil {
			return nil, fmt.Errorf("decode template %s: %w", id, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LoadTemplates makes the store a workflow.TemplateSource.
func (db *DB) LoadTemplates(ctx context.Context) ([]workflow.Template, error) {
	return db.ListTemplates(ctx)
}

func (db *DB) DeleteTemplate(id string) error {
	res, err := db.Exec(db.Q(`DELETE FROM workflow_templates WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	return nil
}

var _ workflow.TemplateSource = (*DB)(nil)
