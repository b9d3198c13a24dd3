package ports

import (
	"context"

	"sessioncore/internal/domain"
)

// ResumeStore persists per-torrent durable state, keyed by InfoHash. Owned
// exclusively by the controller loop.
type ResumeStore interface {
	LoadAll(ctx context.Context) ([]domain.ResumeRow, error)
	Upsert(ctx context.Context, row domain.ResumeRow) error
	Delete(ctx context.Context, hash domain.InfoHash) error
	SchemaVersion(ctx context.Context) (int, error)
	Close() error
}

// SettingsStore is the persistent key/value configuration store.
type SettingsStore interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any) error
	GetAll(ctx context.Context) (map[string]any, error)

	GetCategories(ctx context.Context) ([]domain.Category, error)
	AddCategory(ctx context.Context, c domain.Category) error
	RemoveCategory(ctx context.Context, name string) error

	GetTags(ctx context.Context) ([]string, error)
	AddTag(ctx context.Context, name string) error
	RemoveTag(ctx context.Context, name string) error

	Close() error
}

// RSSHistoryStore is the persistent de-duplication set for the RSS Ingester.
type RSSHistoryStore interface {
	IsSeen(ctx context.Context, uniqueID string) (bool, error)
	MarkSeen(ctx context.Context, uniqueID, feedURL, title string, seenTime int64) error
	PurgeOlderThan(ctx context.Context, cutoff int64) error
	Close() error
}
