package peerfilter

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"strings"

	"sessioncore/internal/domain"
)

// LoadBlocklistFile parses a P2P-format IP blocklist: one rule per line,
// blank lines and lines beginning '#' ignored. Accepted forms are
// "NAME:START_IP-END_IP" or "START_IP-END_IP". A missing file is not an
// error, it is treated the same as an empty blocklist.
func LoadBlocklistFile(path string) ([]domain.IPRange, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var ranges []domain.IPRange
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r, desc, ok := parseBlocklistLine(line)
		if !ok {
			continue
		}
		ranges = append(ranges, domain.IPRange{Description: desc, Start: r[0], End: r[1]})
	}
	return ranges, scanner.Err()
}

// parseBlocklistLine handles both "desc:start-end" and "start-end" shapes.
// Malformed lines are silently skipped.
func parseBlocklistLine(line string) (r [2]uint32, desc string, ok bool) {
	rangePart := line
	if idx := strings.LastIndex(line, ":"); idx >= 0 {
		desc = line[:idx]
		rangePart = line[idx+1:]
	}
	pieces := strings.SplitN(rangePart, "-", 2)
	if len(pieces) != 2 {
		return r, "", false
	}
	start, err := ipToUint32(strings.TrimSpace(pieces[0]))
	if err != nil {
		return r, "", false
	}
	end, err := ipToUint32(strings.TrimSpace(pieces[1]))
	if err != nil {
		return r, "", false
	}
	return [2]uint32{start, end}, desc, true
}

func ipToUint32(s string) (uint32, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("invalid ip %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("not ipv4: %q", s)
	}
	return binary.BigEndian.Uint32(v4), nil
}
