// Package settings is the persistent key/value configuration store, plus
// the categories and tags auxiliary lists. Values are serialized as JSON;
// a key never written returns its declared default.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"sessioncore/internal/domain"
)

type Store struct {
	db       *sqlx.DB
	defaults map[string]any
}

func Open(ctx context.Context, path string, defaultSavePath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, defaults: domain.Defaults(defaultSavePath)}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS categories (name TEXT PRIMARY KEY, save_path TEXT DEFAULT '', color TEXT DEFAULT '#6b7280')`,
		`CREATE TABLE IF NOT EXISTS tags (name TEXT PRIMARY KEY)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT value FROM settings WHERE key = ?`, key)
	if err == sql.ErrNoRows {
		if def, ok := s.defaults[key]; ok {
			return def, true, nil
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw, true, nil
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, string(b))
	return err
}

func (s *Store) GetAll(ctx context.Context) (map[string]any, error) {
	result := make(map[string]any, len(s.defaults))
	for k, v := range s.defaults {
		result[k] = v
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var k, raw string
		if err := rows.Scan(&k, &raw); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			result[k] = raw
			continue
		}
		result[k] = v
	}
	return result, rows.Err()
}

func (s *Store) GetCategories(ctx context.Context) ([]domain.Category, error) {
	var cats []domain.Category
	err := s.db.SelectContext(ctx, &cats, `SELECT name, save_path, color FROM categories ORDER BY name`)
	return cats, err
}

func (s *Store) AddCategory(ctx context.Context, c domain.Category) error {
	if c.Color == "" {
		c.Color = "#6b7280"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, save_path, color) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET save_path=excluded.save_path, color=excluded.color`,
		c.Name, c.SavePath, c.Color)
	return err
}

func (s *Store) RemoveCategory(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE name = ?`, name)
	return err
}

func (s *Store) GetTags(ctx context.Context) ([]string, error) {
	var tags []string
	err := s.db.SelectContext(ctx, &tags, `SELECT name FROM tags ORDER BY name`)
	return tags, err
}

func (s *Store) AddTag(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, name)
	return err
}

func (s *Store) RemoveTag(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE name = ?`, name)
	return err
}

func (s *Store) Close() error { return s.db.Close() }
