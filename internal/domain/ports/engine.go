package ports

import (
	"context"

	"sessioncore/internal/domain"
)

// EngineNotification is one asynchronous notification drained from the
// engine's bounded FIFO queue on every engine-drain tick.
type EngineNotification struct {
	Kind     NotificationKind
	InfoHash domain.InfoHash
	Message  string
	Blob     []byte
	// Peer is populated only for NotifyPeerConnected notifications.
	Peer *PeerConnection
}

type NotificationKind int

const (
	NotifyFinished NotificationKind = iota
	NotifyError
	NotifyMetadataReceived
	NotifySaveResumeOK
	NotifySaveResumeFailed
	NotifyPeerConnected
	NotifyListenSucceeded
	NotifyListenFailed
	NotifyPortMapped
)

// EngineStatus is the single per-tick status bundle Engine.Status returns:
// exactly one query per torrent per tick, per the snapshot semantics.
type EngineStatus struct {
	HasMetadata    bool
	ErrorCode      int
	Paused         bool
	State          domain.EngineState
	TotalSize      int64
	CompletedSize  int64
	DownloadRate   int64
	UploadRate     int64
	TotalDownload  int64
	TotalUpload    int64
	NumSeeds       int
	NumPeers       int
	NumConnections int
}

// PeerConnection is what the adapter reports to the controller when a new
// peer connects, the input to the Peer Filter decision.
type PeerConnection struct {
	InfoHash     domain.InfoHash
	Address      string
	PeerIDPrefix string
	ClientName   string
}

// Engine is the external BitTorrent protocol collaborator. Every method
// must only ever be called from the controller loop goroutine.
type Engine interface {
	AddTorrentFile(ctx context.Context, path, savePath string, paused bool) (domain.InfoHash, error)
	AddMagnet(ctx context.Context, magnet, savePath string, paused bool) (domain.InfoHash, error)
	Remove(ctx context.Context, hash domain.InfoHash, deleteFiles bool) error

	Pause(ctx context.Context, hash domain.InfoHash) error
	Resume(ctx context.Context, hash domain.InfoHash) error
	ForceResume(ctx context.Context, hash domain.InfoHash) error
	ForceRecheck(ctx context.Context, hash domain.InfoHash) error
	ForceReannounce(ctx context.Context, hash domain.InfoHash) error

	SetSpeedLimit(ctx context.Context, hash domain.InfoHash, dl, ul int64) error
	SetSequential(ctx context.Context, hash domain.InfoHash, enabled bool) error
	SetFilePriority(ctx context.Context, hash domain.InfoHash, fileIndex int, prio domain.Priority) error

	AddTracker(ctx context.Context, hash domain.InfoHash, url string) error
	RemoveTracker(ctx context.Context, hash domain.InfoHash, url string) error
	MagnetURI(ctx context.Context, hash domain.InfoHash) (string, error)

	PauseAll(ctx context.Context) error
	ResumeAll(ctx context.Context) error

	// SetDownloadRateLimit/SetUploadRateLimit apply session-wide limits, used
	// by the bandwidth schedule timer. 0 means unlimited.
	SetDownloadRateLimit(ctx context.Context, bytesPerSec int64) error
	SetUploadRateLimit(ctx context.Context, bytesPerSec int64) error

	// ApplySettings re-reads connection/encryption/DHT toggles and reloads
	// the IP blocklist from the given ranges.
	ApplySettings(ctx context.Context, cfg EngineSettings) error

	// Status performs the single per-tick engine query for one torrent.
	Status(ctx context.Context, hash domain.InfoHash) (EngineStatus, error)
	Detail(ctx context.Context, hash domain.InfoHash) (domain.DetailData, error)

	// SaveResumeData asks the engine to persist the resume blob for hash;
	// the acknowledgement arrives asynchronously via Notifications().
	SaveResumeData(ctx context.Context, hash domain.InfoHash) error

	Notifications() <-chan EngineNotification

	// BanAddress installs a single-address deny rule into the engine's IP
	// filter, called after a Peer Filter ban decision.
	BanAddress(ctx context.Context, address string) error

	DHTNodes(ctx context.Context) int

	Close(ctx context.Context) error
}

// EngineSettings is the subset of Settings the engine adapter consumes,
// passed wholesale on Initialize and on every ApplySettings command.
type EngineSettings struct {
	ListenPort               int
	UPnPEnabled              bool
	NATPMPEnabled            bool
	DHTEnabled               bool
	PEXEnabled               bool
	LSDEnabled               bool
	EncryptionMode           domain.EncryptionMode
	MaxConnections           int
	MaxConnectionsPerTorrent int
	MaxUploads               int
	MaxUploadsPerTorrent     int
	MaxDownloadSpeed         int64
	MaxUploadSpeed           int64
	DataDir                  string
	IPBlocklist              []domain.IPRange
}
