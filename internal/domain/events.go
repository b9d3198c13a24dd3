package domain

// Event is the closed set of messages the Session Controller publishes to
// subscribers through the event hub.
type Event interface{ isEvent() }

type ebase struct{}

func (ebase) isEvent() {}

type StartedEvent struct{ ebase }

type StoppedEvent struct{ ebase }

type TorrentAddedEvent struct {
	ebase
	InfoHash InfoHash
}

type AddFailedEvent struct {
	ebase
	Reason string
}

type TorrentRemovedEvent struct {
	ebase
	InfoHash InfoHash
}

type TorrentFinishedEvent struct {
	ebase
	InfoHash InfoHash
}

type TorrentErrorEvent struct {
	ebase
	InfoHash InfoHash
	Message  string
}

type MetadataReceivedEvent struct {
	ebase
	InfoHash InfoHash
}

type StatsUpdatedEvent struct {
	ebase
	Stats SessionStats
}

type DetailUpdatedEvent struct {
	ebase
	Detail DetailData
}

type PeerBannedEvent struct {
	ebase
	Address string
	Reason  string
}

type MagnetURIReadyEvent struct {
	ebase
	InfoHash InfoHash
	URI      string
}

// FeedCheckedEvent and FeedErrorEvent originate from the RSS Ingester but
// flow through the same event hub as controller events, since an Observer
// subscribes once to the whole session core.
type FeedCheckedEvent struct {
	ebase
	URL        string
	TotalItems int
	NewItems   int
}

type FeedErrorEvent struct {
	ebase
	URL     string
	Message string
}
