// Package extract turns a fetched page into a comparable snapshot. There is
// one Extractor per source; the loop never looks at markup itself.
package extract

import (
	"fmt"

	"github.com/deusflow/sitewatch/internal/config"
	"github.com/deusflow/sitewatch/internal/fetch"
	"github.com/deusflow/sitewatch/internal/news"
)

// Extractor parses a fetched response into a Snapshot.
//
// When nothing usable is found it returns an empty snapshot together with a
// *ParseError; callers treat that as "no items", not as a failure.
type Extractor interface {
	Extract(resp *fetch.Response) (news.Snapshot, error)
	Mode() news.Mode
}

// ParseError reports that a page yielded nothing usable.
type ParseError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// New builds the extractor described by a source definition.
func New(src config.Source) (Extractor, error) {
	switch src.Kind {
	case config.KindHTML, "":
		return NewSelector(src)
	case config.KindFeed:
		return &Feed{limit: src.Limit}, nil
	case config.KindHash:
		return NewHash(src), nil
	default:
		return nil, fmt.Errorf("source %q: unknown kind %q", src.Name, src.Kind)
	}
}
