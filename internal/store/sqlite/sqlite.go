package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/interpctl/internal/project"
	"github.com/loykin/interpctl/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// every pooled connection to :memory: would see its own database
	d.SetMaxOpenConns(1)
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS interpreter_settings(
			id TEXT PRIMARY KEY,
			project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			grp TEXT NOT NULL,
			remote BOOLEAN NOT NULL,
			properties TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interpreter_settings_project ON interpreter_settings(project_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) CreateProject(ctx context.Context, name string) (project.Project, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO projects(name, created_at) VALUES(?, ?);`, name, time.Now().UTC())
	if err != nil {
		return project.Project{}, fmt.Errorf("create project %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return project.Project{}, err
	}
	return project.Project{ID: id, Name: name}, nil
}

func (s *DB) GetProject(ctx context.Context, id int64) (project.Project, error) {
	var p project.Project
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM projects WHERE id=?;`, id).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return project.Project{}, project.ErrNotFound
	}
	return p, err
}

func (s *DB) ListProjects(ctx context.Context) ([]project.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM projects ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]project.Project, 0)
	for rows.Next() {
		var p project.Project
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *DB) ListSettings(ctx context.Context, projectID int64) ([]store.SettingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, grp, remote, properties, updated_at
		FROM interpreter_settings
		WHERE project_id=?
		ORDER BY updated_at, id;`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSettings(rows)
}

func (s *DB) GetSetting(ctx context.Context, projectID int64, id string) (store.SettingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, grp, remote, properties, updated_at
		FROM interpreter_settings
		WHERE project_id=? AND id=?;`, projectID, id)
	if err != nil {
		return store.SettingRecord{}, err
	}
	defer func() { _ = rows.Close() }()
	recs, err := scanSettings(rows)
	if err != nil {
		return store.SettingRecord{}, err
	}
	if len(recs) == 0 {
		return store.SettingRecord{}, store.ErrNotFound
	}
	return recs[0], nil
}

func (s *DB) UpsertSetting(ctx context.Context, rec store.SettingRecord) error {
	props, err := store.EncodeProperties(rec.Properties)
	if err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interpreter_settings(id, project_id, name, grp, remote, properties, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			grp=excluded.grp,
			remote=excluded.remote,
			properties=excluded.properties,
			updated_at=excluded.updated_at;`,
		rec.ID, rec.ProjectID, rec.Name, rec.Group, rec.Remote, props, rec.UpdatedAt.UTC())
	return err
}

func (s *DB) DeleteSetting(ctx context.Context, projectID int64, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM interpreter_settings WHERE project_id=? AND id=?;`, projectID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanSettings(rows *sql.Rows) ([]store.SettingRecord, error) {
	out := make([]store.SettingRecord, 0)
	for rows.Next() {
		var (
			r     store.SettingRecord
			props string
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Name, &r.Group, &r.Remote, &props, &r.UpdatedAt); err != nil {
			return nil, err
		}
		p, err := store.DecodeProperties(props)
		if err != nil {
			return nil, fmt.Errorf("setting %s: decode properties: %w", r.ID, err)
		}
		r.Properties = p
		out = append(out, r)
	}
	return out, rows.Err()
}
