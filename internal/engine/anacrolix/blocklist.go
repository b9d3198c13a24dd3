package anacrolix

import (
	"net"
	"sync"

	"github.com/anacrolix/torrent/iplist"
)

// dynamicBlocklist implements iplist.Ranger so individual addresses can be
// banned at runtime (via BanAddress) without rebuilding the torrent client,
// on top of the static ranges loaded from settings (ApplySettings).
type dynamicBlocklist struct {
	mu     sync.RWMutex
	static *iplist.IPList
	single map[string]struct{}
}

func newDynamicBlocklist(static *iplist.IPList) *dynamicBlocklist {
	return &dynamicBlocklist{static: static, single: make(map[string]struct{})}
}

func (b *dynamicBlocklist) ban(address string) {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	b.mu.Lock()
	b.single[host] = struct{}{}
	b.mu.Unlock()
}

func (b *dynamicBlocklist) setStatic(static *iplist.IPList) {
	b.mu.Lock()
	b.static = static
	b.mu.Unlock()
}

// Lookup implements iplist.Ranger: a hit in either the static range list or
// the single-address ban set blocks the address.
func (b *dynamicBlocklist) Lookup(addr net.IP) (iplist.Range, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, banned := b.single[addr.String()]; banned {
		return iplist.Range{Description: "session-banned"}, true
	}
	if b.static != nil {
		return b.static.Lookup(addr)
	}
	return iplist.Range{}, false
}

func (b *dynamicBlocklist) NumRanges() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.single)
	if b.static != nil {
		n += b.static.NumRanges()
	}
	return n
}
