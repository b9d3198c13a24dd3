// Package resume persists durable per-torrent state in a versioned SQLite
// schema. The migration runner is hand-rolled rather than goose-based: the
// schema_version{id=1,version} singleton row is the one authoritative
// version record, and goose's own goose_db_version table would duplicate
// that role.
package resume

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"sessioncore/internal/domain"
)

const currentSchemaVersion = domain.ResumeSchemaVersion

type Store struct {
	db *sqlx.DB
}

// Open creates or migrates the resume database at path and returns a Store
// with a single open connection, matching SQLite's single-writer model.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate resume store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	version, err := s.readVersion(ctx)
	if err != nil {
		return err
	}

	if version < 1 {
		if err := s.migrateTo1(ctx); err != nil {
			return err
		}
		version = 1
	}
	if version < 2 {
		if err := s.migrateTo2(ctx); err != nil {
			return err
		}
		version = 2
	}
	return s.setVersion(ctx, version)
}

func (s *Store) readVersion(ctx context.Context) (int, error) {
	var exists int
	err := s.db.GetContext(ctx, &exists,
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}
	var version int
	if err := s.db.GetContext(ctx, &version, `SELECT version FROM schema_version WHERE id=1`); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}

func (s *Store) setVersion(ctx context.Context, version int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schema_version (id, version) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version=excluded.version`, version)
	return err
}

// migrateTo1 creates the base schema: schema_version and resume_data without
// dl_limit/ul_limit.
func (s *Store) migrateTo1(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (id INTEGER PRIMARY KEY, version INTEGER NOT NULL)`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS resume_data (
		info_hash   TEXT PRIMARY KEY,
		resume_blob BLOB,
		name        TEXT,
		category    TEXT,
		tags        TEXT,
		added_time  INTEGER,
		save_path   TEXT
	)`); err != nil {
		return err
	}
	return tx.Commit()
}

// migrateTo2 adds dl_limit/ul_limit, idempotently ignoring the "duplicate
// column" error SQLite raises when the columns already exist.
func (s *Store) migrateTo2(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`ALTER TABLE resume_data ADD COLUMN dl_limit INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE resume_data ADD COLUMN ul_limit INTEGER NOT NULL DEFAULT 0`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil && !isDuplicateColumn(err) {
			return err
		}
	}
	return tx.Commit()
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return s.readVersion(ctx)
}

type resumeRowDB struct {
	InfoHash   string `db:"info_hash"`
	ResumeBlob []byte `db:"resume_blob"`
	Name       string `db:"name"`
	Category   string `db:"category"`
	Tags       string `db:"tags"`
	AddedTime  int64  `db:"added_time"`
	SavePath   string `db:"save_path"`
	DLLimit    int64  `db:"dl_limit"`
	ULLimit    int64  `db:"ul_limit"`
}

func (s *Store) LoadAll(ctx context.Context) ([]domain.ResumeRow, error) {
	var rows []resumeRowDB
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM resume_data`); err != nil {
		return nil, err
	}
	out := make([]domain.ResumeRow, 0, len(rows))
	for _, r := range rows {
		var tags []string
		// A row that fails to decode (StorageCorruption) is logged and
		// skipped; the remaining rows still load and no error is returned.
		if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
			slog.Warn("resume row skipped: tags do not decode", "info_hash", r.InfoHash, "error", err)
			continue
		}
		hash, err := domain.NewInfoHash(r.InfoHash)
		if err != nil {
			slog.Warn("resume row skipped: invalid info hash", "info_hash", r.InfoHash, "error", err)
			continue
		}
		out = append(out, domain.ResumeRow{
			InfoHash:   hash,
			ResumeBlob: r.ResumeBlob,
			Name:       r.Name,
			Category:   r.Category,
			Tags:       tags,
			AddedTime:  r.AddedTime,
			SavePath:   r.SavePath,
			DLLimit:    r.DLLimit,
			ULLimit:    r.ULLimit,
		})
	}
	return out, nil
}

func (s *Store) Upsert(ctx context.Context, row domain.ResumeRow) error {
	tagsJSON, err := json.Marshal(row.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resume_data (info_hash, resume_blob, name, category, tags, added_time, save_path, dl_limit, ul_limit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(info_hash) DO UPDATE SET
			resume_blob=excluded.resume_blob, name=excluded.name, category=excluded.category,
			tags=excluded.tags, added_time=excluded.added_time, save_path=excluded.save_path,
			dl_limit=excluded.dl_limit, ul_limit=excluded.ul_limit`,
		string(row.InfoHash), row.ResumeBlob, row.Name, row.Category, string(tagsJSON),
		row.AddedTime, row.SavePath, row.DLLimit, row.ULLimit)
	return err
}

func (s *Store) Delete(ctx context.Context, hash domain.InfoHash) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM resume_data WHERE info_hash = ?`, string(hash))
	return err
}

func (s *Store) Close() error { return s.db.Close() }
