package app

import (
	"os"
	"strconv"
	"strings"
)

// Config is the process-wide configuration loaded once at startup and read
// by main while wiring the process. The Session Controller does not receive
// it: its settings come from the Settings Store, snapshotted at Initialize
// and again on ApplySettings.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ConfigRoot     string // holds settings.db, resume.db, rss_history.db, logs/
	TorrentDataDir string

	IPBlocklistPath string

	MaxActiveTorrents  int
	MaxActiveDownloads int
	MaxActiveUploads   int

	RSSFetchTimeoutSeconds int
	RSSMaxConcurrentFetch  int

	CORSAllowedOrigins []string // empty = allow all (dev mode)
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		ConfigRoot:     getEnv("CONFIG_ROOT", "data"),
		TorrentDataDir: getEnv("TORRENT_DATA_DIR", "data/torrents"),

		IPBlocklistPath: getEnv("IP_BLOCKLIST_PATH", ""),

		MaxActiveTorrents:  int(getEnvInt64("MAX_ACTIVE_TORRENTS", 10)),
		MaxActiveDownloads: int(getEnvInt64("MAX_ACTIVE_DOWNLOADS", 5)),
		MaxActiveUploads:   int(getEnvInt64("MAX_ACTIVE_UPLOADS", 5)),

		RSSFetchTimeoutSeconds: int(getEnvInt64("RSS_FETCH_TIMEOUT_SECONDS", 30)),
		RSSMaxConcurrentFetch:  int(getEnvInt64("RSS_MAX_CONCURRENT_FETCH", 2)),

		CORSAllowedOrigins: parseCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

func parseCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}
