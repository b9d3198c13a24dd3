package domain

// TorrentState is the resolved, observable state of a torrent at one snapshot
// instant. It is derived from the engine's raw status plus the controller's
// own auto-managed/paused bookkeeping; see the state resolution decision tree.
type TorrentState string

const (
	StateDownloading TorrentState = "downloading"
	StateSeeding     TorrentState = "seeding"
	StatePaused      TorrentState = "paused"
	StateQueued      TorrentState = "queued"
	StateChecking    TorrentState = "checking"
	StateError       TorrentState = "error"
	StateStalled     TorrentState = "stalled"
	StateCompleted   TorrentState = "completed"
	StateMetadata    TorrentState = "metadata"
	StateMoving      TorrentState = "moving"
)

// EngineState is the coarse phase the engine adapter reports per torrent,
// the input to the controller's state resolution decision tree.
type EngineState string

const (
	EngineCheckingFiles  EngineState = "checking_files"
	EngineCheckingResume EngineState = "checking_resume"
	EngineMetadata       EngineState = "downloading_metadata"
	EngineDownloading    EngineState = "downloading"
	EngineFinished       EngineState = "finished"
	EngineSeeding        EngineState = "seeding"
)

// ResolveState derives the observable state. errorCode non-zero always
// wins; engine-paused is checked against autoManaged next; only then do we
// look at the engine's reported phase.
func ResolveState(errorCode int, enginePaused, autoManaged bool, engineState EngineState, downloadRate int64, numSeeds int) TorrentState {
	switch {
	case errorCode != 0:
		return StateError
	case enginePaused && !autoManaged:
		return StatePaused
	case enginePaused && autoManaged:
		return StateQueued
	case engineState == EngineCheckingFiles || engineState == EngineCheckingResume:
		return StateChecking
	case engineState == EngineMetadata:
		return StateMetadata
	case engineState == EngineDownloading && downloadRate < 1024 && numSeeds > 0:
		return StateStalled
	case engineState == EngineDownloading:
		return StateDownloading
	case engineState == EngineFinished:
		return StateCompleted
	case engineState == EngineSeeding:
		return StateSeeding
	default:
		return StateDownloading
	}
}
