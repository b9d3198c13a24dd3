package domain

// TorrentSnapshot is a plain, copyable value safe to hand across any
// boundary (channel, HTTP response, websocket frame). Consumers never reach
// back into the engine; the controller captures exactly one of these per
// torrent per snapshot tick.
type TorrentSnapshot struct {
	InfoHash    InfoHash `json:"infoHash"`
	Name        string   `json:"name"`
	SavePath    string   `json:"savePath"`
	Valid       bool     `json:"valid"`
	HasMetadata bool     `json:"hasMetadata"`

	State        TorrentState `json:"state"`
	ErrorMessage string       `json:"errorMessage,omitempty"`

	Progress      float64 `json:"progress"`
	TotalSize     int64   `json:"totalSize"`
	CompletedSize int64   `json:"completedSize"`

	DownloadSpeed   int64   `json:"downloadSpeed"`
	UploadSpeed     int64   `json:"uploadSpeed"`
	TotalDownloaded int64   `json:"totalDownloaded"`
	TotalUploaded   int64   `json:"totalUploaded"`
	ETASeconds      int64   `json:"etaSeconds"`
	Ratio           float64 `json:"ratio"`

	NumSeeds       int `json:"numSeeds"`
	NumPeers       int `json:"numPeers"`
	NumConnections int `json:"numConnections"`

	DownloadLimit int64 `json:"downloadLimit"`
	UploadLimit   int64 `json:"uploadLimit"`

	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	AddedTime int64    `json:"addedTime"`
}

// InvalidSnapshot is what a torrent whose engine handle has been lost
// reports; consumers are built to tolerate it.
func InvalidSnapshot(hash InfoHash, name string) TorrentSnapshot {
	return TorrentSnapshot{
		InfoHash: hash,
		Name:     name,
		Valid:    false,
		State:    StateError,
	}
}

// Ratio computes total_uploaded/total_downloaded, 0 when nothing has downloaded.
func Ratio(uploaded, downloaded int64) float64 {
	if downloaded <= 0 {
		return 0
	}
	return float64(uploaded) / float64(downloaded)
}

// ETASeconds computes (totalWanted-completed)/downloadRate, 0 when the rate
// is not positive.
func ETASeconds(totalWanted, completed, downloadRate int64) int64 {
	if downloadRate <= 0 {
		return 0
	}
	remaining := totalWanted - completed
	if remaining <= 0 {
		return 0
	}
	return remaining / downloadRate
}
