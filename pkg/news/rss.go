package news

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// Item is one entry discovered from a feed.
type Item struct {
	URL         string
	Title       string
	PublishedAt *time.Time
}

type rssDoc struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}

// ParseRSS extracts items from a feed document. Entries without a link are
// dropped; a missing or unparsable pubDate leaves PublishedAt nil.
func ParseRSS(data []byte) ([]Item, error) {
	var doc rssDoc
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	// Vietstock feeds occasionally declare windows-1252 while shipping UTF-8.
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("news: parse rss: %w", err)
	}

	out := make([]Item, 0, len(doc.Channel.Items))
	for _, it := range doc.Channel.Items {
		u := NormalizeURL(it.Link)
		if u == "" {
			continue
		}
		item := Item{URL: u, Title: strings.TrimSpace(it.Title)}
		if item.Title == "" {
			item.Title = u
		}
		if ts := parsePubDate(it.PubDate); ts != nil {
			item.PublishedAt = ts
		}
		out = append(out, item)
	}
	return out, nil
}

var pubDateLayouts = []string{
	time.RFC1123Z, // Mon, 16 Feb 2026 00:00:00 +0700
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	time.RFC3339,
}

func parsePubDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

// NormalizeURL trims and upgrades plain-http vietstock links.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "http://vietstock.vn/") {
		u = "https://vietstock.vn/" + u[len("http://vietstock.vn/"):]
	}
	return u
}
