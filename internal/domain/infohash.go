package domain

import (
	"fmt"
	"strings"
)

// InfoHash is a canonical lowercase-hex torrent identity: 40 digits for
// BitTorrent v1, 64 for v2.
type InfoHash string

// NewInfoHash lower-cases and validates a raw hex string from the engine or
// from user input. Both v1 (40-hex) and v2 (64-hex) representations are
// accepted; neither is preferred over the other, they are simply canonicalized
// the same way so they can share one map key space.
func NewInfoHash(raw string) (InfoHash, error) {
	h := strings.ToLower(strings.TrimSpace(raw))
	if len(h) != 40 && len(h) != 64 {
		return "", fmt.Errorf("info hash must be 40 or 64 hex digits, got %d", len(h))
	}
	for _, r := range h {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return "", fmt.Errorf("info hash %q is not hex", raw)
		}
	}
	return InfoHash(h), nil
}

func (h InfoHash) String() string { return string(h) }
