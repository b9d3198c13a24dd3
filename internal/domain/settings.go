package domain

// Settings keys and their defaults. Values round-trip
// through encoding/json the same way the settings store serializes them.
const (
	KeyListenPort       = "listen_port"
	KeyUPnPEnabled      = "upnp_enabled"
	KeyNATPMPEnabled    = "natpmp_enabled"
	KeyDHTEnabled       = "dht_enabled"
	KeyPEXEnabled       = "pex_enabled"
	KeyLSDEnabled       = "lsd_enabled"
	KeyEncryptionMode   = "encryption_mode"

	KeyMaxDownloadSpeed        = "max_download_speed"
	KeyMaxUploadSpeed          = "max_upload_speed"
	KeyMaxConnections          = "max_connections"
	KeyMaxConnectionsPerTorrent = "max_connections_per_torrent"
	KeyMaxUploads              = "max_uploads"
	KeyMaxUploadsPerTorrent    = "max_uploads_per_torrent"

	KeyMaxActiveDownloads = "max_active_downloads"
	KeyMaxActiveUploads   = "max_active_uploads"
	KeyMaxActiveTorrents  = "max_active_torrents"

	KeyOnCompleteAction    = "on_complete_action"
	KeyMaxRatio            = "max_ratio"
	KeyMaxSeedTimeMinutes  = "max_seed_time_minutes"
	KeyRatioAction         = "ratio_action"

	KeyDefaultSavePath        = "default_save_path"
	KeyTempPathEnabled        = "temp_path_enabled"
	KeyTempPath               = "temp_path"
	KeyMoveCompletedEnabled   = "move_completed_enabled"
	KeyMoveCompletedPath      = "move_completed_path"

	KeyPeerFilterEnabled  = "peer_filter_enabled"
	KeyAutoBanXunlei      = "auto_ban_xunlei"
	KeyAutoBanQQ          = "auto_ban_qq"
	KeyAutoBanBaidu       = "auto_ban_baidu"
	KeyIPBlocklistPath    = "ip_blocklist_path"
	KeyPeerFilterCustom   = "peer_filter_custom_rules"
	KeyPeerFilterWhitelist = "peer_filter_whitelist"

	KeyBandwidthSchedule = "bandwidth_schedule"
)

// BandwidthRule is one entry of the bandwidth_schedule setting.
type BandwidthRule struct {
	Start int   `json:"start"` // 0-24
	End   int   `json:"end"`   // 0-24
	DL    int64 `json:"dl"`
	UL    int64 `json:"ul"`
}

type BandwidthSchedule struct {
	Enabled bool            `json:"enabled"`
	Rules   []BandwidthRule `json:"rules"`
}

// Match returns the first rule whose [start,end) window contains hour, per
// the resolved "first match in rule order" precedence.
func (s BandwidthSchedule) Match(hour int) (BandwidthRule, bool) {
	for _, r := range s.Rules {
		if r.Start <= hour && hour < r.End {
			return r, true
		}
	}
	return BandwidthRule{}, false
}

// Defaults is the normative defaults table. Values are the JSON-decoded Go
// representation; callers serialize/deserialize through encoding/json same
// as any other settings value.
func Defaults(defaultSavePath string) map[string]any {
	return map[string]any{
		KeyListenPort:     6881,
		KeyUPnPEnabled:    true,
		KeyNATPMPEnabled:  true,
		KeyDHTEnabled:     true,
		KeyPEXEnabled:     true,
		KeyLSDEnabled:     true,
		KeyEncryptionMode: int(EncryptionPrefer),

		KeyMaxDownloadSpeed:         0,
		KeyMaxUploadSpeed:           13312,
		KeyMaxConnections:           500,
		KeyMaxConnectionsPerTorrent: 100,
		KeyMaxUploads:               20,
		KeyMaxUploadsPerTorrent:    5,

		KeyMaxActiveDownloads: 5,
		KeyMaxActiveUploads:   5,
		KeyMaxActiveTorrents:  10,

		KeyOnCompleteAction:   int(OnCompletePause),
		KeyMaxRatio:           2.0,
		KeyMaxSeedTimeMinutes: 0,
		KeyRatioAction:        int(RatioActionPause),

		KeyDefaultSavePath:      defaultSavePath,
		KeyTempPathEnabled:      false,
		KeyTempPath:             "",
		KeyMoveCompletedEnabled: false,
		KeyMoveCompletedPath:    "",

		KeyPeerFilterEnabled:   true,
		KeyAutoBanXunlei:       true,
		KeyAutoBanQQ:           true,
		KeyAutoBanBaidu:        true,
		KeyIPBlocklistPath:     "",
		KeyPeerFilterCustom:    []BanRule{},
		KeyPeerFilterWhitelist: []string{},

		KeyBandwidthSchedule: BandwidthSchedule{Enabled: false, Rules: []BandwidthRule{}},
	}
}

// Category and Tag are the Settings Store's two auxiliary lists.
type Category struct {
	Name     string `json:"name" db:"name"`
	SavePath string `json:"savePath" db:"save_path"`
	Color    string `json:"color" db:"color"`
}
