package extract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/deusflow/sitewatch/internal/config"
	"github.com/deusflow/sitewatch/internal/fetch"
	"github.com/deusflow/sitewatch/internal/news"
)

// Hash reduces a whole page to a SHA-224 digest.
//
// Without options the raw body is hashed. A selector restricts the digest to
// the text of the matching nodes; readable hashes the main article text,
// which ignores rotating ads and timestamps around it.
type Hash struct {
	selector string
	readable bool
}

func NewHash(src config.Source) *Hash {
	return &Hash{selector: strings.TrimSpace(src.Selector), readable: src.Readable}
}

func (h *Hash) Mode() news.Mode { return news.ModeHash }

func (h *Hash) Extract(resp *fetch.Response) (news.Snapshot, error) {
	snap := news.Snapshot{Mode: news.ModeHash}

	content := resp.Body
	switch {
	case h.selector != "":
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			return snap, &ParseError{URL: resp.URL, Reason: "invalid HTML", Err: err}
		}
		var parts []string
		doc.Find(h.selector).Each(func(_ int, sel *goquery.Selection) {
			if t := cleanText(sel.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		if len(parts) == 0 {
			return snap, &ParseError{URL: resp.URL, Reason: "selector " + h.selector + " matched no text"}
		}
		content = []byte(strings.Join(parts, "\n"))
	case h.readable:
		pageURL, _ := url.Parse(resp.URL)
		article, err := readability.FromReader(bytes.NewReader(resp.Body), pageURL)
		if err != nil {
			return snap, &ParseError{URL: resp.URL, Reason: "no readable content", Err: err}
		}
		text := strings.TrimSpace(article.TextContent)
		if text == "" {
			return snap, &ParseError{URL: resp.URL, Reason: "no readable content"}
		}
		content = []byte(text)
	}

	snap.Hash = Sum(content)
	return snap, nil
}

// Sum returns the hex SHA-224 digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum224(data)
	return hex.EncodeToString(sum[:])
}
