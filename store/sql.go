package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/spektr-org/widgetkit/widget"
)

const createWidgets = `
CREATE TABLE IF NOT EXISTS widgets (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	state      TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

type widgetRow struct {
	ID        string `db:"id"`
	Type      string `db:"type"`
	State     string `db:"state"`
	UpdatedAt string `db:"updated_at"`
}

// SQLStore keeps widgets in a single table. It works with any driver sqlx
// knows the bind style of; sqlite3 and postgres are the ones used.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// OpenSQL connects with driver and dsn and creates the widgets table.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	s, err := NewSQLStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database and creates the widgets table.
func NewSQLStore(ctx context.Context, db *sqlx.DB) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, createWidgets); err != nil {
		return nil, fmt.Errorf("create widgets table: %w", err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

// Get reads one widget.
func (s *SQLStore) Get(ctx context.Context, id string) (widget.State, error) {
	var row widgetRow
	q := s.db.Rebind(`SELECT id, type, state, updated_at FROM widgets WHERE id = ?`)
	err := s.db.GetContext(ctx, &row, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return widget.State{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return widget.State{}, fmt.Errorf("get widget %s: %w", id, err)
	}
	return decodeState(row.ID, []byte(row.State))
}

// Put inserts or replaces a widget.
func (s *SQLStore) Put(ctx context.Context, st widget.State) error {
	if err := checkID(st.ID); err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode widget %s: %w", st.ID, err)
	}
	q := s.db.Rebind(`
		INSERT INTO widgets (id, type, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			type = excluded.type,
			state = excluded.state,
			updated_at = excluded.updated_at`)
	updated := s.now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, q, st.ID, st.Type, string(data), updated); err != nil {
		return fmt.Errorf("save widget %s: %w", st.ID, err)
	}
	return nil
}

// Delete removes a widget.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM widgets WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete widget %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete widget %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

// List returns every stored widget ordered by ID.
func (s *SQLStore) List(ctx context.Context) ([]widget.State, error) {
	var rows []widgetRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, type, state, updated_at FROM widgets ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list widgets: %w", err)
	}
	out := make([]widget.State, 0, len(rows))
	for _, r := range rows {
		st, err := decodeState(r.ID, []byte(r.State))
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
