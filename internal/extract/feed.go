package extract

import (
	"github.com/deusflow/sitewatch/internal/fetch"
	"github.com/deusflow/sitewatch/internal/news"
	"github.com/deusflow/sitewatch/internal/rss"
)

// Feed extracts items from an RSS, Atom or JSON feed.
type Feed struct {
	limit int
}

func (f *Feed) Mode() news.Mode { return news.ModeSet }

func (f *Feed) Extract(resp *fetch.Response) (news.Snapshot, error) {
	snap := news.Snapshot{Mode: news.ModeSet}

	items, err := rss.Parse(resp.Body)
	if err != nil {
		return snap, &ParseError{URL: resp.URL, Reason: "invalid feed", Err: err}
	}
	if f.limit > 0 && len(items) > f.limit {
		items = items[:f.limit]
	}
	if len(items) == 0 {
		return snap, &ParseError{URL: resp.URL, Reason: "feed has no items"}
	}
	snap.Items = items
	return snap, nil
}
