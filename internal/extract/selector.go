package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"github.com/deusflow/sitewatch/internal/config"
	"github.com/deusflow/sitewatch/internal/fetch"
	"github.com/deusflow/sitewatch/internal/news"
)

// Selector extracts an item list with CSS selectors.
type Selector struct {
	item     string
	title    string
	link     string
	linkAttr string
	date     string
	dateAttr string
	idFrom   string
	base     *url.URL
	limit    int
}

func NewSelector(src config.Source) (*Selector, error) {
	if strings.TrimSpace(src.Item) == "" {
		return nil, fmt.Errorf("source %q: item selector is required", src.Name)
	}
	s := &Selector{
		item:     src.Item,
		title:    src.Title,
		link:     src.Link,
		linkAttr: src.LinkAttr,
		date:     src.Date,
		dateAttr: src.DateAttr,
		idFrom:   src.ID,
		limit:    src.Limit,
	}
	if s.linkAttr == "" {
		s.linkAttr = "href"
	}
	if s.idFrom == "" {
		s.idFrom = config.IDFromLink
	}
	if src.BaseURL != "" {
		u, err := url.Parse(src.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("source %q: base_url: %w", src.Name, err)
		}
		s.base = u
	}
	return s, nil
}

func (s *Selector) Mode() news.Mode { return news.ModeSet }

func (s *Selector) Extract(resp *fetch.Response) (news.Snapshot, error) {
	snap := news.Snapshot{Mode: news.ModeSet}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return snap, &ParseError{URL: resp.URL, Reason: "invalid HTML", Err: err}
	}

	base := s.base
	if base == nil {
		base, _ = url.Parse(resp.URL)
	}

	doc.Find(s.item).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if s.limit > 0 && len(snap.Items) >= s.limit {
			return false
		}
		if it, ok := s.itemFrom(sel, base); ok {
			snap.Items = append(snap.Items, it)
		}
		return true
	})

	if len(snap.Items) == 0 {
		return snap, &ParseError{URL: resp.URL, Reason: fmt.Sprintf("no items matched %q", s.item)}
	}
	return snap, nil
}

func (s *Selector) itemFrom(sel *goquery.Selection, base *url.URL) (news.Item, bool) {
	linkSel := sel
	switch {
	case s.link != "":
		linkSel = sel.Find(s.link).First()
	case !sel.Is("a"):
		linkSel = sel.Find("a").First()
	}

	title := ""
	if s.title != "" {
		title = cleanText(sel.Find(s.title).First().Text())
	}
	if title == "" {
		title = cleanText(linkSel.Text())
	}
	if title == "" {
		title = cleanText(sel.Text())
	}

	link := ""
	if href, ok := linkSel.Attr(s.linkAttr); ok {
		link = resolve(base, strings.TrimSpace(href))
	}

	it := news.Item{Title: title, Link: link}
	switch s.idFrom {
	case config.IDFromTitle:
		it.ID = title
	case config.IDFromTitleLink:
		if title != "" || link != "" {
			it.ID = title + "|" + link
		}
	default:
		it.ID = link
		if it.ID == "" {
			it.ID = title
		}
	}
	if it.ID == "" {
		return it, false
	}

	if s.date != "" {
		it.PublishedAt = s.publishedAt(sel.Find(s.date).First())
	}
	return it, true
}

func (s *Selector) publishedAt(sel *goquery.Selection) *time.Time {
	raw := ""
	if s.dateAttr != "" {
		raw, _ = sel.Attr(s.dateAttr)
	} else {
		raw = sel.Text()
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil
	}
	return &t
}

func resolve(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
