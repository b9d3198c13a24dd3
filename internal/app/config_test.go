package app

import (
	"os"
	"testing"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	envVars := []string{
		"HTTP_ADDR", "LOG_LEVEL", "LOG_FORMAT", "CONFIG_ROOT", "TORRENT_DATA_DIR",
		"IP_BLOCKLIST_PATH", "MAX_ACTIVE_TORRENTS", "MAX_ACTIVE_DOWNLOADS",
		"MAX_ACTIVE_UPLOADS", "RSS_FETCH_TIMEOUT_SECONDS", "RSS_MAX_CONCURRENT_FETCH",
		"CORS_ALLOWED_ORIGINS",
	}
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":8080"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"ConfigRoot", cfg.ConfigRoot, "data"},
		{"TorrentDataDir", cfg.TorrentDataDir, "data/torrents"},
		{"IPBlocklistPath", cfg.IPBlocklistPath, ""},
		{"MaxActiveTorrents", cfg.MaxActiveTorrents, 10},
		{"MaxActiveDownloads", cfg.MaxActiveDownloads, 5},
		{"MaxActiveUploads", cfg.MaxActiveUploads, 5},
		{"RSSFetchTimeoutSeconds", cfg.RSSFetchTimeoutSeconds, 30},
		{"RSSMaxConcurrentFetch", cfg.RSSMaxConcurrentFetch, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}

	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Errorf("CORSAllowedOrigins: got %v, want nil/empty", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	setEnvs(t, map[string]string{
		"HTTP_ADDR":                 ":9090",
		"LOG_LEVEL":                 "DEBUG",
		"LOG_FORMAT":                "JSON",
		"CONFIG_ROOT":               "/var/lib/sessioncore",
		"TORRENT_DATA_DIR":          "/mnt/data",
		"IP_BLOCKLIST_PATH":         "/etc/sessioncore/blocklist.txt",
		"MAX_ACTIVE_TORRENTS":       "20",
		"MAX_ACTIVE_DOWNLOADS":      "8",
		"MAX_ACTIVE_UPLOADS":        "8",
		"RSS_FETCH_TIMEOUT_SECONDS": "45",
		"RSS_MAX_CONCURRENT_FETCH":  "4",
		"CORS_ALLOWED_ORIGINS":      "http://localhost:3000, https://example.com",
	})

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":9090"},
		{"LogLevel", cfg.LogLevel, "debug"},
		{"LogFormat", cfg.LogFormat, "json"},
		{"ConfigRoot", cfg.ConfigRoot, "/var/lib/sessioncore"},
		{"TorrentDataDir", cfg.TorrentDataDir, "/mnt/data"},
		{"IPBlocklistPath", cfg.IPBlocklistPath, "/etc/sessioncore/blocklist.txt"},
		{"MaxActiveTorrents", cfg.MaxActiveTorrents, 20},
		{"MaxActiveDownloads", cfg.MaxActiveDownloads, 8},
		{"MaxActiveUploads", cfg.MaxActiveUploads, 8},
		{"RSSFetchTimeoutSeconds", cfg.RSSFetchTimeoutSeconds, 45},
		{"RSSMaxConcurrentFetch", cfg.RSSMaxConcurrentFetch, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}

	wantOrigins := []string{"http://localhost:3000", "https://example.com"}
	if len(cfg.CORSAllowedOrigins) != len(wantOrigins) {
		t.Fatalf("CORSAllowedOrigins: got %d entries, want %d", len(cfg.CORSAllowedOrigins), len(wantOrigins))
	}
	for i, got := range cfg.CORSAllowedOrigins {
		if got != wantOrigins[i] {
			t.Errorf("CORSAllowedOrigins[%d]: got %q, want %q", i, got, wantOrigins[i])
		}
	}
}

func TestGetEnvInt64InvalidFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback int64
		want     int64
	}{
		{"empty string", "", 42, 42},
		{"not a number", "abc", 42, 42},
		{"negative number", "-5", 42, 42},
		{"zero", "0", 42, 0},
		{"valid positive", "100", 42, 100},
		{"whitespace around number", "  50  ", 42, 50},
		{"float", "3.14", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT_VAR", tt.envVal)
			got := getEnvInt64("TEST_INT_VAR", tt.fallback)
			if got != tt.want {
				t.Errorf("getEnvInt64(%q, %d) = %d, want %d", tt.envVal, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty string", "", nil},
		{"whitespace only", "   ", nil},
		{"single value", "http://localhost:3000", []string{"http://localhost:3000"}},
		{"multiple values", "a,b,c", []string{"a", "b", "c"}},
		{"values with spaces", " a , b , c ", []string{"a", "b", "c"}},
		{"trailing comma", "a,b,", []string{"a", "b"}},
		{"empty entries filtered", "a,,b,,c", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCSV(tt.input)
			if tt.want == nil {
				if got != nil {
					t.Errorf("parseCSV(%q) = %v, want nil", tt.input, got)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseCSV(%q) returned %d elements, want %d", tt.input, len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("parseCSV(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetEnvFallback(t *testing.T) {
	t.Setenv("TEST_EXISTING", "hello")

	if got := getEnv("TEST_EXISTING", "default"); got != "hello" {
		t.Errorf("getEnv(existing) = %q, want %q", got, "hello")
	}

	t.Setenv("TEST_MISSING_XYZ", "")
	os.Unsetenv("TEST_MISSING_XYZ")
	if got := getEnv("TEST_MISSING_XYZ", "default"); got != "default" {
		t.Errorf("getEnv(missing) = %q, want %q", got, "default")
	}
}

func TestLogLevelCaseInsensitive(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	cfg := LoadConfig()
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "debug")
	}

	t.Setenv("LOG_LEVEL", "Warn")
	cfg = LoadConfig()
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "warn")
	}
}
