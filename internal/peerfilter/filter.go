// Package peerfilter decides, for each newly connected peer, whether the
// controller should ban it: whitelist first, then the built-in peer-id
// prefix table (filtered by category flags), client-name patterns, custom
// rules, and finally the IP blocklist. Ban decisions are recorded in a
// 500-entry ring buffer.
package peerfilter

import (
	"encoding/binary"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"sessioncore/internal/domain"
)

type category int

const (
	categoryNone category = iota
	categoryXunlei
	categoryQQ
	categoryBaidu
)

type builtinRule struct {
	prefix   string
	reason   string
	category category
}

// knownLeechers is the fixed list of known-abusive peer-id prefixes.
var knownLeechers = []builtinRule{
	{"-XL", "Xunlei/Thunder", categoryXunlei},
	{"-SD", "Thunder (Xunlei variant)", categoryXunlei},
	{"-XF", "Xfplay", categoryNone},
	{"-QD", "QQ Tornado/Whirlwind", categoryQQ},
	{"-BN", "Baidu Net", categoryBaidu},
	{"-DL", "Dalunlei", categoryXunlei},
	{"-TS", "TorrentStorm", categoryNone},
	{"-FG", "FlashGet", categoryNone},
	{"-TT", "TuoTu", categoryNone},
}

type clientPattern struct {
	re     *regexp.Regexp
	reason string
}

var suspiciousClients = []clientPattern{
	{regexp.MustCompile(`(?i)Xunlei`), "Xunlei client name match"},
	{regexp.MustCompile(`(?i)Thunder`), "Thunder client name match"},
	{regexp.MustCompile(`(?i)QQDownload`), "QQ Download"},
	{regexp.MustCompile(`(?i)7\.\d+\.\d+\.\d+`), "Xunlei version pattern"},
}

// compiledCustomRule is a custom rule whose regex compiled successfully, or
// whose pattern is treated purely as a prefix if it fails to compile.
type compiledCustomRule struct {
	domain.BanRule
	re *regexp.Regexp // nil if the pattern doesn't compile as regex
}

// Filter is the ban-decision engine. Safe for use only from the controller
// loop goroutine, same ownership rule as the engine and resume store.
type Filter struct {
	mu     sync.Mutex // guards only the ban log, which may be read by an API handler concurrently
	cfg    domain.PeerFilterConfig
	custom []compiledCustomRule
	log    []domain.BanLogEntry
}

func New(cfg domain.PeerFilterConfig) *Filter {
	f := &Filter{}
	f.Configure(cfg)
	return f
}

func (f *Filter) Configure(cfg domain.PeerFilterConfig) {
	f.cfg = cfg
	f.custom = make([]compiledCustomRule, 0, len(cfg.CustomRules))
	for _, r := range cfg.CustomRules {
		cr := compiledCustomRule{BanRule: r}
		if re, err := regexp.Compile(r.Pattern); err == nil {
			cr.re = re
		}
		f.custom = append(f.custom, cr)
	}
}

// Check runs the ban-decision rules in order. peerIDPrefix is the first 8
// bytes of the peer's handshake id as ASCII.
func (f *Filter) Check(peerIDPrefix, clientName, ip string) (ban bool, reason string) {
	if !f.cfg.Enabled {
		return false, ""
	}

	for _, w := range f.cfg.Whitelist {
		if strings.HasPrefix(peerIDPrefix, w) {
			return false, ""
		}
	}

	for _, r := range knownLeechers {
		if f.categoryActive(r.category) && strings.HasPrefix(peerIDPrefix, r.prefix) {
			f.logBan(ip, clientName, r.reason)
			return true, r.reason
		}
	}

	for _, p := range suspiciousClients {
		if p.re.MatchString(clientName) {
			f.logBan(ip, clientName, p.reason)
			return true, p.reason
		}
	}

	for _, r := range f.custom {
		if !r.Enabled {
			continue
		}
		if strings.HasPrefix(peerIDPrefix, r.Pattern) || (r.re != nil && r.re.MatchString(clientName)) {
			f.logBan(ip, clientName, r.Reason)
			return true, r.Reason
		}
	}

	if f.ipBlocked(ip) {
		f.logBan(ip, clientName, "IP blocklist")
		return true, "IP blocklist"
	}

	return false, ""
}

func (f *Filter) categoryActive(c category) bool {
	switch c {
	case categoryXunlei:
		return f.cfg.BanXunlei
	case categoryQQ:
		return f.cfg.BanQQ
	case categoryBaidu:
		return f.cfg.BanBaidu
	default:
		return true
	}
}

func (f *Filter) ipBlocked(ip string) bool {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return false
	}
	v := binary.BigEndian.Uint32(parsed)
	for _, r := range f.cfg.Blocklist {
		if r.Start <= v && v <= r.End {
			return true
		}
	}
	return false
}

func (f *Filter) logBan(ip, client, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, domain.BanLogEntry{
		Timestamp: time.Now(),
		IP:        ip,
		Client:    client,
		Reason:    reason,
	})
	if len(f.log) > domain.BanLogCapacity {
		f.log = f.log[len(f.log)-domain.BanLogCapacity:]
	}
}

// Log returns a copy of the current ban log, oldest first.
func (f *Filter) Log() []domain.BanLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.BanLogEntry, len(f.log))
	copy(out, f.log)
	return out
}
