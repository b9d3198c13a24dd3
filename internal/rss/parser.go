package rss

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"sessioncore/internal/domain"
)

// rssDocument is the RSS 2.0 struct-tag shape: one root struct holding the
// channel, one item struct per feed entry.
type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title     string       `xml:"title"`
	Link      string       `xml:"link"`
	Guid      string       `xml:"guid"`
	PubDate   string       `xml:"pubDate"`
	Enclosure rssEnclosure `xml:"enclosure"`
	// Any captures every child element that doesn't already bind to one of
	// the named fields above, including <magnetURI> and whatever other tag
	// a feed happens to carry a magnet link in.
	Any []rssAny `xml:",any"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length int64  `xml:"length,attr"`
}

type rssAny struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

// atomFeed is the Atom 1.0 equivalent: entries instead of items, multiple
// typed <link> elements instead of one <link> plus <enclosure>.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	ID        string     `xml:"id"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	Links     []atomLink `xml:"link"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// parseFeed tries RSS 2.0 first, then Atom 1.0; a feed that matches neither
// root element returns an error.
func parseFeed(payload []byte) ([]domain.FeedItem, error) {
	var rss rssDocument
	if err := xml.Unmarshal(payload, &rss); err == nil {
		return itemsFromRSS(rss.Channel.Items), nil
	}

	var atom atomFeed
	if err := xml.Unmarshal(payload, &atom); err == nil {
		return itemsFromAtom(atom.Entries), nil
	}

	return nil, fmt.Errorf("payload is neither a recognizable RSS 2.0 nor Atom 1.0 feed")
}

func itemsFromRSS(items []rssItem) []domain.FeedItem {
	out := make([]domain.FeedItem, 0, len(items))
	for _, it := range items {
		// Child elements are inspected first; the item link is only
		// promoted to a magnet when no child supplied one.
		magnet := ""
		for _, child := range it.Any {
			text := strings.TrimSpace(child.Text)
			if text == "" {
				continue
			}
			if child.XMLName.Local == "magnetURI" || strings.HasPrefix(strings.ToLower(text), "magnet:") {
				magnet = text
				break
			}
		}
		if magnet == "" && strings.HasPrefix(strings.ToLower(strings.TrimSpace(it.Link)), "magnet:?") {
			magnet = strings.TrimSpace(it.Link)
		}

		torrentURL := ""
		encURL := strings.TrimSpace(it.Enclosure.URL)
		if encURL != "" && (strings.HasSuffix(strings.ToLower(encURL), ".torrent") || strings.Contains(strings.ToLower(it.Enclosure.Type), "torrent")) {
			torrentURL = encURL
		}

		link := strings.TrimSpace(it.Link)
		guid := strings.TrimSpace(it.Guid)
		if guid == "" {
			guid = link
		}

		out = append(out, domain.FeedItem{
			Title:      strings.TrimSpace(it.Title),
			Link:       link,
			Magnet:     magnet,
			TorrentURL: torrentURL,
			PubDate:    normalizeFeedTime(it.PubDate),
			Size:       it.Enclosure.Length,
			GUID:       guid,
		})
	}
	return out
}

func itemsFromAtom(entries []atomEntry) []domain.FeedItem {
	out := make([]domain.FeedItem, 0, len(entries))
	for _, e := range entries {
		var link, torrentURL, magnet string
		for _, l := range e.Links {
			href := strings.TrimSpace(l.Href)
			if href == "" {
				continue
			}
			switch {
			case strings.HasPrefix(strings.ToLower(href), "magnet:?"):
				magnet = href
			case strings.Contains(l.Type, "bittorrent") || strings.HasSuffix(strings.ToLower(href), ".torrent"):
				torrentURL = href
			case l.Rel == "" || l.Rel == "alternate":
				if link == "" {
					link = href
				}
			}
		}
		pub := e.Published
		if pub == "" {
			pub = e.Updated
		}
		out = append(out, domain.FeedItem{
			Title:      strings.TrimSpace(e.Title),
			Link:       link,
			Magnet:     magnet,
			TorrentURL: torrentURL,
			PubDate:    normalizeFeedTime(pub),
			GUID:       strings.TrimSpace(e.ID),
		})
	}
	return out
}

var feedTimeFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02T15:04:05Z07:00",
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

// normalizeFeedTime reformats whatever date layout the feed used into
// RFC3339 so downstream sort/compare is layout-independent; an unparseable
// or empty date is passed through unchanged.
func normalizeFeedTime(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range feedTimeFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return raw
}
