package rss

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestHistorySeenRoundTrip(t *testing.T) {
	ctx := context.Background()
	h, err := OpenHistory(ctx, filepath.Join(t.TempDir(), "rss_history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	seen, err := h.IsSeen(ctx, "item-1")
	if err != nil || seen {
		t.Fatalf("expected unseen, got seen=%v err=%v", seen, err)
	}

	if err := h.MarkSeen(ctx, "item-1", "http://feed", "Title", time.Now().Unix()); err != nil {
		t.Fatal(err)
	}

	seen, err = h.IsSeen(ctx, "item-1")
	if err != nil || !seen {
		t.Fatalf("expected seen after mark, got seen=%v err=%v", seen, err)
	}
}

func TestHistoryMarkSeenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h, err := OpenHistory(ctx, filepath.Join(t.TempDir(), "rss_history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	for i := 0; i < 3; i++ {
		if err := h.MarkSeen(ctx, "dup", "http://feed", "Title", time.Now().Unix()); err != nil {
			t.Fatalf("mark seen attempt %d: %v", i, err)
		}
	}
}

func TestHistoryPurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	h, err := OpenHistory(ctx, filepath.Join(t.TempDir(), "rss_history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	old := time.Now().Add(-100 * 24 * time.Hour).Unix()
	recent := time.Now().Unix()
	if err := h.MarkSeen(ctx, "old-item", "http://feed", "Old", old); err != nil {
		t.Fatal(err)
	}
	if err := h.MarkSeen(ctx, "recent-item", "http://feed", "Recent", recent); err != nil {
		t.Fatal(err)
	}

	cutoff := time.Now().Add(-90 * 24 * time.Hour).Unix()
	if err := h.PurgeOlderThan(ctx, cutoff); err != nil {
		t.Fatal(err)
	}

	seenOld, _ := h.IsSeen(ctx, "old-item")
	seenRecent, _ := h.IsSeen(ctx, "recent-item")
	if seenOld {
		t.Fatal("expected old item purged")
	}
	if !seenRecent {
		t.Fatal("expected recent item to survive purge")
	}
}
