package store

import (
	"database/sql"
	"errors"
	"fmt"

	"robotcore/points"
)

var ErrNotFound = errors.New("store: not found")

const pointSelectCols = `id, x, y, theta, category`

func scanPoint(row interface{ Scan(...any) error }) (points.Point, error) {
	var p points.Point
	var cat string
	if err := row.Scan(&p.ID, &p.X, &p.Y, &p.Theta, &cat); err != nil {
		return p, err
	}
	p.Category = points.Category(cat)
	return p, nil
}

// UpsertPoint stores a point. The category is derived from the id, never
// taken from the caller.
func (db *DB) UpsertPoint(p points.Point) error {
	p.Category = points.Classify(p.ID)
	_, err := db.Exec(db.Q(`INSERT INTO points (id, x, y, theta, category) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET x=excluded.x, y=excluded.y, theta=excluded.theta,
			category=excluded.category, updated_at=CURRENT_TIMESTAMP`),
		p.ID, p.X, p.Y, p.Theta, string(p.Category))
	if err != nil {
		return fmt.Errorf("upsert point %s: %w", p.ID, err)
	}
	return nil
}

func (db *DB) GetPoint(id string) (points.Point, error) {
	p, err := scanPoint(db.QueryRow(db.Q(`SELECT `+pointSelectCols+` FROM points WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("point %s: %w", id, ErrNotFound)
	}
	return p, err
}

func (db *DB) ListPoints() ([]points.Point, error) {
	rows, err := db.Query(`SELECT ` + pointSelectCols + ` FROM points ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []points.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) DeletePoint(id string) error {
	res, err := db.Exec(db.Q(`DELETE FROM points WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("point %s: %w", id, ErrNotFound)
	}
	return nil
}
