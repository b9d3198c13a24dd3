package domain

import "time"

// BanRule is a user-defined peer filter rule: a peer-id prefix or a
// client-name regular expression, matched in addition to the built-in set.
type BanRule struct {
	Pattern string `json:"pattern"`
	Reason  string `json:"reason"`
	Enabled bool   `json:"enabled"`
}

// IPRange is one inclusive address range parsed from a blocklist file.
type IPRange struct {
	Description string `json:"description"`
	Start       uint32 `json:"start"`
	End         uint32 `json:"end"`
}

// PeerFilterConfig is the live configuration of the ban-decision engine.
type PeerFilterConfig struct {
	Enabled     bool      `json:"enabled"`
	BanXunlei   bool      `json:"banXunlei"`
	BanQQ       bool      `json:"banQQ"`
	BanBaidu    bool      `json:"banBaidu"`
	CustomRules []BanRule `json:"customRules"`
	Whitelist   []string  `json:"whitelist"`
	Blocklist   []IPRange `json:"blocklist"`
}

// BanLogEntry is one record in the ban-decision ring buffer.
type BanLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	Client    string    `json:"client"`
	Reason    string    `json:"reason"`
}

const BanLogCapacity = 500
