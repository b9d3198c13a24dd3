package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FeedConfig describes one RSS/Atom feed the ingester polls.
type FeedConfig struct {
	URL             string `json:"url"`
	Name            string `json:"name"`
	Enabled         bool   `json:"enabled"`
	IntervalMinutes int    `json:"intervalMinutes"`
	IncludePattern  string `json:"includePattern"`
	ExcludePattern  string `json:"excludePattern"`
	SavePath        string `json:"savePath"`
	Category        string `json:"category"`
	AutoDownload    bool   `json:"autoDownload"`
}

// Normalize clamps interval_minutes to the valid [5,1440] range, per the
// "interval_minutes < 5 is rejected at config load (clamped to 5)" rule.
func (f FeedConfig) Normalize() FeedConfig {
	if f.IntervalMinutes < 5 {
		f.IntervalMinutes = 5
	}
	if f.IntervalMinutes > 1440 {
		f.IntervalMinutes = 1440
	}
	return f
}

// FeedItem is one parsed, ephemeral entry from a feed fetch.
type FeedItem struct {
	Title      string
	Link       string
	Magnet     string
	TorrentURL string
	PubDate    string
	Size       int64
	GUID       string
}

// DownloadURL derives the URL AddTorrent should use: magnet first, then the
// enclosure torrent URL, else the link if it looks like a .torrent or magnet,
// else empty.
func (i FeedItem) DownloadURL() string {
	switch {
	case i.Magnet != "":
		return i.Magnet
	case i.TorrentURL != "":
		return i.TorrentURL
	case strings.HasSuffix(strings.ToLower(i.Link), ".torrent") || strings.HasPrefix(strings.ToLower(i.Link), "magnet:"):
		return i.Link
	default:
		return ""
	}
}

// UniqueID is the de-duplication key: guid when present, else a deterministic
// hash of title||link||magnet truncated to 32 hex digits.
func (i FeedItem) UniqueID() string {
	if i.GUID != "" {
		return i.GUID
	}
	sum := sha256.Sum256([]byte(i.Title + i.Link + i.Magnet))
	return hex.EncodeToString(sum[:])[:32]
}
