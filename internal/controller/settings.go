package controller

import (
	"encoding/json"

	"sessioncore/internal/domain"
)

// sessionConfig is the controller's resolved, typed view of the Settings
// Store's key/value map, taken once at Initialize and re-taken on every
// ApplySettings.
type sessionConfig struct {
	ListenPort    int
	UPnPEnabled   bool
	NATPMPEnabled bool
	DHTEnabled    bool
	PEXEnabled    bool
	LSDEnabled    bool
	Encryption    domain.EncryptionMode

	MaxConnections           int
	MaxConnectionsPerTorrent int
	MaxUploads               int
	MaxUploadsPerTorrent     int
	MaxDownloadSpeed         int64
	MaxUploadSpeed           int64

	MaxActiveDownloads int
	MaxActiveUploads   int
	MaxActiveTorrents  int

	OnCompleteAction   domain.OnCompleteAction
	MaxRatio           float64
	MaxSeedTimeMinutes int
	RatioAction        domain.RatioAction

	DefaultSavePath       string
	TempPathEnabled       bool
	TempPath              string
	MoveCompletedEnabled  bool
	MoveCompletedPath     string

	PeerFilter domain.PeerFilterConfig

	BandwidthSchedule domain.BandwidthSchedule

	IPBlocklistPath string
}

func buildSessionConfig(values map[string]any) sessionConfig {
	return sessionConfig{
		ListenPort:    getSetting(values, domain.KeyListenPort, 6881),
		UPnPEnabled:   getSetting(values, domain.KeyUPnPEnabled, true),
		NATPMPEnabled: getSetting(values, domain.KeyNATPMPEnabled, true),
		DHTEnabled:    getSetting(values, domain.KeyDHTEnabled, true),
		PEXEnabled:    getSetting(values, domain.KeyPEXEnabled, true),
		LSDEnabled:    getSetting(values, domain.KeyLSDEnabled, true),
		Encryption:    domain.EncryptionMode(getSetting(values, domain.KeyEncryptionMode, int(domain.EncryptionPrefer))),

		MaxConnections:           getSetting(values, domain.KeyMaxConnections, 500),
		MaxConnectionsPerTorrent: getSetting(values, domain.KeyMaxConnectionsPerTorrent, 100),
		MaxUploads:               getSetting(values, domain.KeyMaxUploads, 20),
		MaxUploadsPerTorrent:     getSetting(values, domain.KeyMaxUploadsPerTorrent, 5),
		MaxDownloadSpeed:         getSetting[int64](values, domain.KeyMaxDownloadSpeed, 0),
		MaxUploadSpeed:           getSetting[int64](values, domain.KeyMaxUploadSpeed, 13312),

		MaxActiveDownloads: getSetting(values, domain.KeyMaxActiveDownloads, 5),
		MaxActiveUploads:   getSetting(values, domain.KeyMaxActiveUploads, 5),
		MaxActiveTorrents:  getSetting(values, domain.KeyMaxActiveTorrents, 10),

		OnCompleteAction:   domain.OnCompleteAction(getSetting(values, domain.KeyOnCompleteAction, int(domain.OnCompletePause))),
		MaxRatio:           getSetting(values, domain.KeyMaxRatio, 2.0),
		MaxSeedTimeMinutes: getSetting(values, domain.KeyMaxSeedTimeMinutes, 0),
		RatioAction:        domain.RatioAction(getSetting(values, domain.KeyRatioAction, int(domain.RatioActionPause))),

		DefaultSavePath:      getSetting(values, domain.KeyDefaultSavePath, ""),
		TempPathEnabled:      getSetting(values, domain.KeyTempPathEnabled, false),
		TempPath:             getSetting(values, domain.KeyTempPath, ""),
		MoveCompletedEnabled: getSetting(values, domain.KeyMoveCompletedEnabled, false),
		MoveCompletedPath:    getSetting(values, domain.KeyMoveCompletedPath, ""),

		PeerFilter: domain.PeerFilterConfig{
			Enabled:     getSetting(values, domain.KeyPeerFilterEnabled, true),
			BanXunlei:   getSetting(values, domain.KeyAutoBanXunlei, true),
			BanQQ:       getSetting(values, domain.KeyAutoBanQQ, true),
			BanBaidu:    getSetting(values, domain.KeyAutoBanBaidu, true),
			CustomRules: getSetting(values, domain.KeyPeerFilterCustom, []domain.BanRule{}),
			Whitelist:   getSetting(values, domain.KeyPeerFilterWhitelist, []string{}),
		},

		BandwidthSchedule: getSetting(values, domain.KeyBandwidthSchedule, domain.BandwidthSchedule{}),

		IPBlocklistPath: getSetting(values, domain.KeyIPBlocklistPath, ""),
	}
}

// getSetting decodes a raw settings value into T by round-tripping through
// JSON. GetAll hands back a mix of literal Go defaults and
// json.Unmarshal-produced values (float64 for numbers, map[string]any for
// objects); re-marshaling and decoding into the concrete target type
// normalizes both shapes the same way.
func getSetting[T any](values map[string]any, key string, fallback T) T {
	raw, ok := values[key]
	if !ok {
		return fallback
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fallback
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return fallback
	}
	return v
}
