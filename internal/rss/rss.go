package rss

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/sitewatch/internal/news"
)

// Parse reads an RSS/Atom/JSON feed body and returns its items in feed order.
// The item ID is the GUID, falling back to the link.
func Parse(body []byte) ([]news.Item, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	items := make([]news.Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		id := it.GUID
		if id == "" {
			id = it.Link
		}
		if id == "" {
			continue
		}
		n := news.Item{ID: id, Title: it.Title, Link: it.Link}
		switch {
		case it.PublishedParsed != nil:
			n.PublishedAt = it.PublishedParsed
		case it.UpdatedParsed != nil:
			n.PublishedAt = it.UpdatedParsed
		}
		items = append(items, n)
	}
	return items, nil
}

// Channel describes the exported feed.
type Channel struct {
	Title    string
	Link     string
	Language string
}

type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language,omitempty"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string  `xml:"title"`
	Link        string  `xml:"link,omitempty"`
	GUID        rssGUID `xml:"guid"`
	PubDate     string  `xml:"pubDate,omitempty"`
	Description string  `xml:"description"`
}

type rssGUID struct {
	Value       string `xml:",chardata"`
	IsPermaLink bool   `xml:"isPermaLink,attr"`
}

// Encode renders items as an RSS 2.0 document.
func Encode(ch Channel, items []news.Item, now time.Time) ([]byte, error) {
	doc := rssDoc{
		Version: "2.0",
		Channel: rssChannel{
			Title:         ch.Title,
			Link:          ch.Link,
			Description:   "RSS feed for " + ch.Title,
			Language:      ch.Language,
			LastBuildDate: now.UTC().Format(time.RFC1123Z),
		},
	}
	for _, it := range items {
		ri := rssItem{
			Title:       it.Title,
			Link:        it.Link,
			GUID:        rssGUID{Value: it.ID, IsPermaLink: it.ID == it.Link},
			Description: it.Title,
		}
		if it.PublishedAt != nil {
			ri.PubDate = it.PublishedAt.UTC().Format(time.RFC1123Z)
		}
		doc.Channel.Items = append(doc.Channel.Items, ri)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode rss: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteFile encodes items and atomically replaces path with the result.
func WriteFile(path string, ch Channel, items []news.Item) error {
	data, err := Encode(ch, items, time.Now())
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
