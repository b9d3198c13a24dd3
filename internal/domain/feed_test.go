package domain

import (
	"encoding/json"
	"testing"
)

func TestFeedItemDownloadURLPrecedence(t *testing.T) {
	item := FeedItem{Magnet: "magnet:?a", TorrentURL: "https://x/a.torrent", Link: "https://x/page"}
	if got := item.DownloadURL(); got != "magnet:?a" {
		t.Fatalf("expected magnet first, got %q", got)
	}
	item.Magnet = ""
	if got := item.DownloadURL(); got != "https://x/a.torrent" {
		t.Fatalf("expected torrent url second, got %q", got)
	}
	item.TorrentURL = ""
	if got := item.DownloadURL(); got != "" {
		t.Fatalf("expected empty for a plain page link, got %q", got)
	}
	item.Link = "https://x/File.TORRENT"
	if got := item.DownloadURL(); got != "https://x/File.TORRENT" {
		t.Fatalf("expected case-insensitive .torrent link promotion, got %q", got)
	}
}

func TestFeedItemUniqueIDDeterministic(t *testing.T) {
	a := FeedItem{Title: "T", Link: "L", Magnet: "M"}
	b := FeedItem{Title: "T", Link: "L", Magnet: "M"}
	if a.UniqueID() != b.UniqueID() {
		t.Fatal("identical items must hash identically")
	}
	if len(a.UniqueID()) != 32 {
		t.Fatalf("expected 32 hex digits, got %d", len(a.UniqueID()))
	}
	withGUID := FeedItem{GUID: "g-1", Title: "T"}
	if withGUID.UniqueID() != "g-1" {
		t.Fatalf("guid must win when present, got %q", withGUID.UniqueID())
	}
}

func TestFeedConfigNormalizeClampsInterval(t *testing.T) {
	if got := (FeedConfig{IntervalMinutes: 1}).Normalize().IntervalMinutes; got != 5 {
		t.Fatalf("expected clamp to 5, got %d", got)
	}
	if got := (FeedConfig{IntervalMinutes: 10000}).Normalize().IntervalMinutes; got != 1440 {
		t.Fatalf("expected clamp to 1440, got %d", got)
	}
	if got := (FeedConfig{IntervalMinutes: 30}).Normalize().IntervalMinutes; got != 30 {
		t.Fatalf("expected in-range interval untouched, got %d", got)
	}
}

func TestFeedConfigJSONRoundTrip(t *testing.T) {
	in := FeedConfig{
		URL:             "https://example.com/feed",
		Name:            "Example",
		Enabled:         true,
		IntervalMinutes: 15,
		IncludePattern:  "1080p",
		ExcludePattern:  "cam",
		SavePath:        "/downloads",
		Category:        "Movies",
		AutoDownload:    true,
	}
	payload, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out FeedConfig
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestBandwidthScheduleFirstMatchWins(t *testing.T) {
	s := BandwidthSchedule{Rules: []BandwidthRule{
		{Start: 0, End: 12, DL: 100, UL: 50},
		{Start: 8, End: 18, DL: 200, UL: 150},
	}}
	rule, ok := s.Match(9)
	if !ok || rule.DL != 100 {
		t.Fatalf("expected first rule at hour 9, got %+v ok=%v", rule, ok)
	}
	rule, ok = s.Match(14)
	if !ok || rule.DL != 200 {
		t.Fatalf("expected second rule at hour 14, got %+v ok=%v", rule, ok)
	}
	if _, ok := s.Match(20); ok {
		t.Fatal("expected no match at hour 20")
	}
}

func TestNewInfoHashCanonicalizes(t *testing.T) {
	h, err := NewInfoHash("  AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA ")
	if err != nil {
		t.Fatal(err)
	}
	if h != InfoHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa") {
		t.Fatalf("expected lowercase canonical form, got %q", h)
	}
	if _, err := NewInfoHash("tooshort"); err == nil {
		t.Fatal("expected length error")
	}
	if _, err := NewInfoHash("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"); err == nil {
		t.Fatal("expected hex error")
	}
}
