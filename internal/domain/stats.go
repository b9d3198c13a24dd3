package domain

// SessionStats is the session-wide value published once per stats tick.
// It is immutable once emitted: callers must not mutate the slices.
type SessionStats struct {
	DownloadRate int64 `json:"downloadRate"`
	UploadRate   int64 `json:"uploadRate"`
	DHTNodes     int   `json:"dhtNodes"`

	DownloadHistory []int64 `json:"downloadHistory"`
	UploadHistory   []int64 `json:"uploadHistory"`

	TorrentCount int               `json:"torrentCount"`
	Torrents     []TorrentSnapshot `json:"torrents"`
}

// DetailData is emitted only for the currently focused torrent.
type DetailData struct {
	InfoHash    InfoHash       `json:"infoHash"`
	Files       []FileDetail   `json:"files"`
	Peers       []PeerDetail   `json:"peers"`
	Trackers    []TrackerDetail `json:"trackers"`
	Pieces      []PieceState   `json:"pieces"`
	PieceLength int64          `json:"pieceLength"`
	DLHistory   []int64        `json:"dlHistory"`
	ULHistory   []int64        `json:"ulHistory"`
}

type FileDetail struct {
	Index    int      `json:"index"`
	Path     string   `json:"path"`
	Size     int64    `json:"size"`
	Fraction float64  `json:"fraction"`
	Priority Priority `json:"priority"`
}

type PeerDetail struct {
	Address     string  `json:"address"`
	Port        int     `json:"port"`
	Client      string  `json:"client"`
	Flags       string  `json:"flags"`
	DownSpeed   int64   `json:"downSpeed"`
	UpSpeed     int64   `json:"upSpeed"`
	Progress    float64 `json:"progress"`
	DownTotal   int64   `json:"downTotal"`
	UpTotal     int64   `json:"upTotal"`
}

type TrackerDetail struct {
	URL     string        `json:"url"`
	Status  TrackerStatus `json:"status"`
	Seeds   int           `json:"seeds"`
	Peers   int           `json:"peers"`
	Message string        `json:"message,omitempty"`
}
