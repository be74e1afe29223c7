package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/interpctl/internal/project"
	"github.com/loykin/interpctl/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects(
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS interpreter_settings(
			id TEXT PRIMARY KEY,
			project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			grp TEXT NOT NULL,
			remote BOOLEAN NOT NULL,
			properties TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interpreter_settings_project ON interpreter_settings(project_id);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) CreateProject(ctx context.Context, name string) (project.Project, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO projects(name, created_at) VALUES($1, $2) RETURNING id;`,
		name, time.Now().UTC()).Scan(&id)
	if err != nil {
		return project.Project{}, fmt.Errorf("create project %q: %w", name, err)
	}
	return project.Project{ID: id, Name: name}, nil
}

func (p *DB) GetProject(ctx context.Context, id int64) (project.Project, error) {
	var pr project.Project
	err := p.db.QueryRowContext(ctx, `SELECT id, name FROM projects WHERE id=$1;`, id).Scan(&pr.ID, &pr.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return project.Project{}, project.ErrNotFound
	}
	return pr, err
}

func (p *DB) ListProjects(ctx context.Context) ([]project.Project, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name FROM projects ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]project.Project, 0)
	for rows.Next() {
		var pr project.Project
		if err := rows.Scan(&pr.ID, &pr.Name); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (p *DB) ListSettings(ctx context.Context, projectID int64) ([]store.SettingRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, project_id, name, grp, remote, properties, updated_at
		FROM interpreter_settings
		WHERE project_id=$1
		ORDER BY updated_at, id;`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSettings(rows)
}

func (p *DB) GetSetting(ctx context.Context, projectID int64, id string) (store.SettingRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, project_id, name, grp, remote, properties, updated_at
		FROM interpreter_settings
		WHERE project_id=$1 AND id=$2;`, projectID, id)
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

func (p *DB) UpsertSetting(ctx context.Context, rec store.SettingRecord) error {
	props, err := store.EncodeProperties(rec.Properties)
	if err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO interpreter_settings(id, project_id, name, grp, remote, properties, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(id) DO UPDATE SET
			name=EXCLUDED.name,
			grp=EXCLUDED.grp,
			remote=EXCLUDED.remote,
			properties=EXCLUDED.properties,
			updated_at=EXCLUDED.updated_at;`,
		rec.ID, rec.ProjectID, rec.Name, rec.Group, rec.Remote, props, rec.UpdatedAt.UTC())
	return err
}

func (p *DB) DeleteSetting(ctx context.Context, projectID int64, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM interpreter_settings WHERE project_id=$1 AND id=$2;`, projectID, id)
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
		m, err := store.DecodeProperties(props)
		if err != nil {
			return nil, fmt.Errorf("setting %s: decode properties: %w", r.ID, err)
		}
		r.Properties = m
		out = append(out, r)
	}
	return out, rows.Err()
}
