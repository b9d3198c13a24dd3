package peerfilter

import (
	"os"
	"testing"

	"sessioncore/internal/domain"
)

func defaultConfig() domain.PeerFilterConfig {
	return domain.PeerFilterConfig{
		Enabled:  true,
		BanXunlei: true,
		BanQQ:     true,
		BanBaidu:  true,
	}
}

func TestDisabledPassesAll(t *testing.T) {
	cfg := defaultConfig()
	cfg.Enabled = false
	f := New(cfg)
	if banned, _ := f.Check("-XL1234-", "Xunlei", "1.2.3.4"); banned {
		t.Fatal("expected allow when disabled")
	}
}

func TestBanBuiltinPrefixes(t *testing.T) {
	f := New(defaultConfig())
	cases := []struct {
		prefix string
		name   string
	}{
		{"-XL1234-", "Unknown"},
		{"-SD1234-", "Unknown"},
		{"-QD1234-", "Unknown"},
		{"-BN1234-", "Unknown"},
	}
	for _, c := range cases {
		if banned, reason := f.Check(c.prefix, c.name, "1.2.3.4"); !banned || reason == "" {
			t.Fatalf("expected ban for %s", c.prefix)
		}
	}
}

func TestPassQBittorrent(t *testing.T) {
	f := New(defaultConfig())
	if banned, _ := f.Check("-qB4500-", "qBittorrent/4.5.0", "1.2.3.4"); banned {
		t.Fatal("expected allow for qbittorrent")
	}
}

func TestBanByClientName(t *testing.T) {
	f := New(defaultConfig())
	if banned, _ := f.Check("-XX1234-", "Xunlei 7.2.1", "1.2.3.4"); !banned {
		t.Fatal("expected ban by client name")
	}
}

func TestWhitelistOverridesBuiltin(t *testing.T) {
	cfg := defaultConfig()
	cfg.Whitelist = []string{"-XL"}
	f := New(cfg)
	if banned, _ := f.Check("-XL1234-", "Unknown", "1.2.3.4"); banned {
		t.Fatal("expected whitelist to override built-in rule")
	}
}

func TestCustomRule(t *testing.T) {
	cfg := defaultConfig()
	cfg.CustomRules = []domain.BanRule{{Pattern: "-MY", Reason: "Custom leecher", Enabled: true}}
	f := New(cfg)
	banned, reason := f.Check("-MY1234-", "Unknown", "1.2.3.4")
	if !banned || reason != "Custom leecher" {
		t.Fatalf("expected custom ban, got %v %q", banned, reason)
	}
}

func TestDisableXunleiOnlyLeavesQQActive(t *testing.T) {
	cfg := defaultConfig()
	cfg.BanXunlei = false
	f := New(cfg)
	if banned, _ := f.Check("-XL1234-", "Unknown", "1.2.3.4"); banned {
		t.Fatal("expected xunlei allow when ban_xunlei=false")
	}
	if banned, _ := f.Check("-QD1234-", "Unknown", "1.2.3.4"); !banned {
		t.Fatal("expected qq still banned")
	}
}

func TestIPBlocklist(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "blocklist-*.p2p")
	if err != nil {
		t.Fatal(err)
	}
	tmp.WriteString("Test Range:1.2.3.0-1.2.3.255\n# comment\nAnother:10.0.0.1-10.0.0.10\n")
	tmp.Close()

	ranges, err := LoadBlocklistFile(tmp.Name())
	if err != nil {
		t.Fatal(err)
	}
	if len(ranges) != 2 {
		t.Fatalf("expected 2 ranges, got %d", len(ranges))
	}

	cfg := defaultConfig()
	cfg.Blocklist = ranges
	f := New(cfg)

	if banned, reason := f.Check("-qB1234-", "qBittorrent", "1.2.3.50"); !banned || reason != "IP blocklist" {
		t.Fatalf("expected IP blocklist ban, got %v %q", banned, reason)
	}
	if banned, _ := f.Check("-qB1234-", "qBittorrent", "2.2.2.2"); banned {
		t.Fatal("expected allow for unlisted IP")
	}
}

func TestMissingBlocklistFileIsNotAnError(t *testing.T) {
	ranges, err := LoadBlocklistFile("/nonexistent/path/blocklist.p2p")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ranges) != 0 {
		t.Fatalf("expected empty ranges, got %d", len(ranges))
	}
}

func TestBanLogCapped(t *testing.T) {
	f := New(defaultConfig())
	for i := 0; i < domain.BanLogCapacity+10; i++ {
		f.Check("-XL1234-", "Unknown", "1.2.3.4")
	}
	if len(f.Log()) != domain.BanLogCapacity {
		t.Fatalf("expected log capped at %d, got %d", domain.BanLogCapacity, len(f.Log()))
	}
}
