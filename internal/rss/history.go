// Package rss is the feed ingester: per-feed polling, RSS 2.0 / Atom 1.0
// parsing, dedup history and filtered torrent/magnet emission.
package rss

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// HistoryStore is the sqlite-backed dedup log for seen feed items.
type HistoryStore struct {
	db *sqlx.DB
}

func OpenHistory(ctx context.Context, path string) (*HistoryStore, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)

	h := &HistoryStore{db: db}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS seen_items (
		item_id   TEXT PRIMARY KEY,
		feed_url  TEXT NOT NULL,
		title     TEXT,
		seen_time INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_seen_items_time ON seen_items(seen_time)`); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

func (h *HistoryStore) IsSeen(ctx context.Context, itemID string) (bool, error) {
	var count int
	err := h.db.GetContext(ctx, &count, `SELECT count(*) FROM seen_items WHERE item_id = ?`, itemID)
	return count > 0, err
}

func (h *HistoryStore) MarkSeen(ctx context.Context, itemID, feedURL, title string, seenTime int64) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_items (item_id, feed_url, title, seen_time) VALUES (?, ?, ?, ?)`,
		itemID, feedURL, title, seenTime)
	return err
}

// PurgeOlderThan deletes seen-item rows with seen_time before cutoff, keeping
// the history table from growing unbounded across a long-lived feed.
func (h *HistoryStore) PurgeOlderThan(ctx context.Context, cutoff int64) error {
	_, err := h.db.ExecContext(ctx, `DELETE FROM seen_items WHERE seen_time < ?`, cutoff)
	return err
}

func (h *HistoryStore) Close() error { return h.db.Close() }
