package telegram

import (
	"html"
	"strings"

	"github.com/deusflow/sitewatch/internal/news"
)

var (
	markdownEscaper   = strings.NewReplacer(`_`, `\_`, `*`, `\*`, "`", "\\`", `[`, `\[`)
	markdownV2Escaper = strings.NewReplacer(
		`\`, `\\`, `_`, `\_`, `*`, `\*`, `[`, `\[`, `]`, `\]`, `(`, `\(`, `)`, `\)`,
		`~`, `\~`, "`", "\\`", `>`, `\>`, `#`, `\#`, `+`, `\+`, `-`, `\-`, `=`, `\=`,
		`|`, `\|`, `{`, `\{`, `}`, `\}`, `.`, `\.`, `!`, `\!`,
	)
)

// Escape makes text safe to send verbatim in the given parse mode.
func Escape(text, parseMode string) string {
	switch parseMode {
	case "HTML":
		return html.EscapeString(text)
	case "Markdown":
		return markdownEscaper.Replace(text)
	case "MarkdownV2":
		return markdownV2Escaper.Replace(text)
	default:
		return text
	}
}

// FormatItem renders one new item: source, title, publication date and link.
func FormatItem(source string, item news.Item, parseMode string) string {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = item.ID
	}

	var b strings.Builder
	switch parseMode {
	case "HTML":
		b.WriteString("<b>" + html.EscapeString(source) + "</b>\n")
		if item.Link != "" {
			b.WriteString(`<a href="` + html.EscapeString(item.Link) + `">` + html.EscapeString(title) + "</a>")
		} else {
			b.WriteString(html.EscapeString(title))
		}
	case "Markdown", "MarkdownV2":
		b.WriteString("*" + Escape(source, parseMode) + "*\n")
		if item.Link != "" {
			link := item.Link
			if parseMode == "MarkdownV2" {
				link = strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(link)
			}
			b.WriteString("[" + Escape(title, parseMode) + "](" + link + ")")
		} else {
			b.WriteString(Escape(title, parseMode))
		}
	default:
		b.WriteString(source + "\n" + title)
		if item.Link != "" {
			b.WriteString("\n" + item.Link)
		}
	}

	if item.PublishedAt != nil && !item.PublishedAt.IsZero() {
		b.WriteString("\n" + Escape(item.PublishedAt.UTC().Format("2006-01-02 15:04 UTC"), parseMode))
	}
	return b.String()
}
