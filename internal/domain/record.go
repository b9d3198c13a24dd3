package domain

// TorrentRecord is the controller's in-memory bookkeeping for one torrent.
// Exactly one record exists per InfoHash for the lifetime between a
// successful AddTorrent and the moment Remove completes.
type TorrentRecord struct {
	InfoHash         InfoHash
	Name             string
	SavePath         string
	Category         string
	Tags             []string
	AddedTime        int64 // unix seconds
	AutoManaged      bool
	Sequential       bool
	DownloadLimit    int64
	UploadLimit      int64
	LatestSnapshot   TorrentSnapshot
	DownloadHistory  *RateHistory
	UploadHistory    *RateHistory
}

// NewTorrentRecord constructs a record with fresh, independent history
// buffers -- never share backing arrays between records.
func NewTorrentRecord(hash InfoHash, name, savePath, category string, tags []string, addedTime int64) *TorrentRecord {
	t := make([]string, len(tags))
	copy(t, tags)
	return &TorrentRecord{
		InfoHash:        hash,
		Name:            name,
		SavePath:        savePath,
		Category:        category,
		Tags:            t,
		AddedTime:       addedTime,
		AutoManaged:     true,
		DownloadHistory: NewRateHistory(perTorrentHistoryLen),
		UploadHistory:   NewRateHistory(perTorrentHistoryLen),
	}
}

// History windows: 120 per-torrent rate samples, 300 session-wide.
const (
	perTorrentHistoryLen = 120
	SessionHistoryLen    = 300
)

// RateHistory is a bounded ring buffer of rate samples (bytes/sec).
type RateHistory struct {
	samples []int64
	cap     int
}

func NewRateHistory(capacity int) *RateHistory {
	return &RateHistory{samples: make([]int64, 0, capacity), cap: capacity}
}

func (r *RateHistory) Append(v int64) {
	if len(r.samples) >= r.cap {
		copy(r.samples, r.samples[1:])
		r.samples = r.samples[:len(r.samples)-1]
	}
	r.samples = append(r.samples, v)
}

func (r *RateHistory) Values() []int64 {
	out := make([]int64, len(r.samples))
	copy(out, r.samples)
	return out
}

func (r *RateHistory) Len() int { return len(r.samples) }
