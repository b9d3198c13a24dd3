package rss

import "testing"

const rssSample = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
    <title>Test Feed</title>
    <item>
        <title>Ubuntu 22.04.3 LTS Desktop</title>
        <link>https://example.com/ubuntu</link>
        <guid>item-001</guid>
        <pubDate>Mon, 01 Jan 2024 12:00:00 +0000</pubDate>
        <enclosure url="https://example.com/ubuntu.torrent" type="application/x-bittorrent" length="3456789"/>
    </item>
    <item>
        <title>Magnet Item</title>
        <link>magnet:?xt=urn:btih:abc123</link>
        <guid>item-002</guid>
    </item>
    <item>
        <title>No Download</title>
        <link>https://example.com/page</link>
        <guid>item-003</guid>
    </item>
    <item>
        <title>Missing Guid</title>
        <link>https://example.com/missing-guid</link>
    </item>
    <item>
        <title>Podcast Episode</title>
        <link>https://example.com/podcast</link>
        <guid>item-005</guid>
        <enclosure url="https://example.com/episode.mp3" type="audio/mpeg" length="1000"/>
    </item>
    <item>
        <title>Magnet In Custom Tag</title>
        <link>https://example.com/custom</link>
        <guid>item-006</guid>
        <customLink>magnet:?xt=urn:btih:custom789</customLink>
    </item>
</channel>
</rss>`

const atomSample = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
    <title>Atom Feed</title>
    <entry>
        <title>Atom Torrent</title>
        <id>atom-001</id>
        <updated>2024-01-15T10:00:00Z</updated>
        <link href="https://example.com/file.torrent" type="application/x-bittorrent"/>
        <link href="https://example.com/page" rel="alternate"/>
    </entry>
    <entry>
        <title>Atom Magnet</title>
        <id>atom-002</id>
        <link href="magnet:?xt=urn:btih:def456" rel="alternate"/>
    </entry>
</feed>`

func TestParseRSSCount(t *testing.T) {
	items, err := parseFeed([]byte(rssSample))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 6 {
		t.Fatalf("expected 6 items, got %d", len(items))
	}
}

func TestParseRSSEnclosure(t *testing.T) {
	items, _ := parseFeed([]byte(rssSample))
	if items[0].Title != "Ubuntu 22.04.3 LTS Desktop" {
		t.Fatalf("unexpected title: %q", items[0].Title)
	}
	if items[0].TorrentURL != "https://example.com/ubuntu.torrent" {
		t.Fatalf("unexpected torrent url: %q", items[0].TorrentURL)
	}
	if items[0].Size != 3456789 {
		t.Fatalf("unexpected size: %d", items[0].Size)
	}
	if items[0].GUID != "item-001" {
		t.Fatalf("unexpected guid: %q", items[0].GUID)
	}
}

func TestParseRSSMagnet(t *testing.T) {
	items, _ := parseFeed([]byte(rssSample))
	if items[1].Magnet != "magnet:?xt=urn:btih:abc123" {
		t.Fatalf("unexpected magnet: %q", items[1].Magnet)
	}
}

func TestParseRSSDownloadURLPriority(t *testing.T) {
	items, _ := parseFeed([]byte(rssSample))
	if got := items[0].DownloadURL(); got != "https://example.com/ubuntu.torrent" {
		t.Fatalf("expected enclosure torrent url, got %q", got)
	}
	if got := items[1].DownloadURL(); got != "magnet:?xt=urn:btih:abc123" {
		t.Fatalf("expected magnet, got %q", got)
	}
	if got := items[2].DownloadURL(); got != "" {
		t.Fatalf("expected no downloadable link, got %q", got)
	}
}

func TestParseAtomCount(t *testing.T) {
	items, err := parseFeed([]byte(atomSample))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(items))
	}
}

func TestParseAtomTorrentLink(t *testing.T) {
	items, _ := parseFeed([]byte(atomSample))
	if items[0].Title != "Atom Torrent" {
		t.Fatalf("unexpected title: %q", items[0].Title)
	}
	if items[0].TorrentURL != "https://example.com/file.torrent" {
		t.Fatalf("unexpected torrent url: %q", items[0].TorrentURL)
	}
	if items[0].GUID != "atom-001" {
		t.Fatalf("unexpected guid: %q", items[0].GUID)
	}
}

func TestParseAtomMagnet(t *testing.T) {
	items, _ := parseFeed([]byte(atomSample))
	if items[1].Magnet != "magnet:?xt=urn:btih:def456" {
		t.Fatalf("unexpected magnet: %q", items[1].Magnet)
	}
}

func TestParseInvalidXML(t *testing.T) {
	_, err := parseFeed([]byte("not xml at all"))
	if err == nil {
		t.Fatal("expected error for non-XML payload")
	}
}

func TestParseEmptyChannelYieldsNoItems(t *testing.T) {
	xml := `<?xml version="1.0"?><rss version="2.0"><channel><title>Empty</title></channel></rss>`
	items, err := parseFeed([]byte(xml))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestFeedItemUniqueID(t *testing.T) {
	items, _ := parseFeed([]byte(rssSample))
	if items[0].UniqueID() != "item-001" {
		t.Fatalf("expected guid as unique id, got %q", items[0].UniqueID())
	}
}

func TestParseRSSMissingGuidFallsBackToLink(t *testing.T) {
	items, _ := parseFeed([]byte(rssSample))
	item := items[3]
	if item.GUID != "https://example.com/missing-guid" {
		t.Fatalf("expected guid to fall back to link, got %q", item.GUID)
	}
	if item.UniqueID() != item.GUID {
		t.Fatalf("expected unique id to use the fallback guid, got %q", item.UniqueID())
	}
}

func TestParseRSSNonTorrentEnclosureIgnored(t *testing.T) {
	items, _ := parseFeed([]byte(rssSample))
	item := items[4]
	if item.TorrentURL != "" {
		t.Fatalf("expected non-torrent enclosure to be ignored, got %q", item.TorrentURL)
	}
	if item.DownloadURL() != "" {
		t.Fatalf("expected no downloadable link for a podcast enclosure, got %q", item.DownloadURL())
	}
}

func TestParseRSSMagnetInArbitraryTag(t *testing.T) {
	items, _ := parseFeed([]byte(rssSample))
	item := items[5]
	if item.Magnet != "magnet:?xt=urn:btih:custom789" {
		t.Fatalf("expected magnet scanned from an arbitrary child tag, got %q", item.Magnet)
	}
}

func TestParseRSSMagnetChildBeatsMagnetLink(t *testing.T) {
	xml := `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item>
    <title>Both Sources</title>
    <link>magnet:?xt=urn:btih:fromlink</link>
    <guid>item-both</guid>
    <magnetURI>magnet:?xt=urn:btih:fromchild</magnetURI>
</item>
</channel></rss>`
	items, err := parseFeed([]byte(xml))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Magnet != "magnet:?xt=urn:btih:fromchild" {
		t.Fatalf("expected the child element's magnet to win over the link, got %q", items[0].Magnet)
	}
}
