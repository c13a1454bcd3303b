package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	KindHTML = "html"
	KindFeed = "feed"
	KindHash = "hash"
)

// Identifier strategies for html sources.
const (
	IDFromLink      = "link"
	IDFromTitle     = "title"
	IDFromTitleLink = "title+link"
)

// Source is one watched page.
//
//	sources:
//	  - name: wizardofodds
//	    url: https://wizardofodds.com/blog/
//	    item: article.post
//	    title: h2.entry-title
//	    link: a.entry-title-link
//	    date: time.entry-time
//	    date_attr: datetime
type Source struct {
	Name     string            `yaml:"name"`
	URL      string            `yaml:"url"`
	Kind     string            `yaml:"kind"`
	Interval time.Duration     `yaml:"interval"`
	Schedule string            `yaml:"schedule"`
	Headers  map[string]string `yaml:"headers"`

	// html
	Item     string `yaml:"item"`
	Title    string `yaml:"title"`
	Link     string `yaml:"link"`
	LinkAttr string `yaml:"link_attr"`
	Date     string `yaml:"date"`
	DateAttr string `yaml:"date_attr"`
	BaseURL  string `yaml:"base_url"`
	ID       string `yaml:"id"`
	Limit    int    `yaml:"limit"`

	// hash
	Selector string `yaml:"selector"`
	Readable bool   `yaml:"readable"`

	// Export writes the current items as RSS 2.0 to this path after each cycle.
	Export         string `yaml:"export"`
	ExportTitle    string `yaml:"export_title"`
	ExportLanguage string `yaml:"export_language"`
}

// SourcesFile is the YAML document layout.
type SourcesFile struct {
	Sources []Source `yaml:"sources"`
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// LoadSources reads and validates the sources list from a YAML file.
func LoadSources(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Key: "sources file", Err: err}
	}
	defer f.Close()

	var doc SourcesFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, &Error{Key: "sources file", Err: fmt.Errorf("%s: %w", path, err)}
	}
	if err := ValidateSources(doc.Sources); err != nil {
		return nil, err
	}
	return doc.Sources, nil
}

// ValidateSources fills defaults and rejects unusable definitions.
func ValidateSources(sources []Source) error {
	if len(sources) == 0 {
		return &Error{Key: "sources", Err: errors.New("at least one source is required")}
	}
	seen := make(map[string]bool, len(sources))
	for i := range sources {
		s := &sources[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		if s.Kind == "" {
			s.Kind = KindHTML
		}
		if !validName.MatchString(s.Name) {
			return &Error{Key: fmt.Sprintf("sources[%d].name", i), Err: fmt.Errorf("invalid name %q", s.Name)}
		}
		if seen[s.Name] {
			return &Error{Key: fmt.Sprintf("sources[%d].name", i), Err: fmt.Errorf("duplicate name %q", s.Name)}
		}
		seen[s.Name] = true
		if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
			return &Error{Key: s.Name + ".url", Err: fmt.Errorf("must be an http(s) URL, got %q", s.URL)}
		}
		switch s.Kind {
		case KindHTML:
			if strings.TrimSpace(s.Item) == "" {
				return &Error{Key: s.Name + ".item", Err: errRequired}
			}
		case KindFeed, KindHash:
		default:
			return &Error{Key: s.Name + ".kind", Err: fmt.Errorf("unknown kind %q", s.Kind)}
		}
		switch s.ID {
		case "", IDFromLink, IDFromTitle, IDFromTitleLink:
		default:
			return &Error{Key: s.Name + ".id", Err: fmt.Errorf("unknown id strategy %q", s.ID)}
		}
		if s.Interval < 0 {
			return &Error{Key: s.Name + ".interval", Err: errors.New("must not be negative")}
		}
	}
	return nil
}

// ScheduleSpec returns the cron spec for a source: its explicit schedule,
// its interval, or the global default interval.
func (s Source) ScheduleSpec(fallback time.Duration) string {
	if strings.TrimSpace(s.Schedule) != "" {
		return strings.TrimSpace(s.Schedule)
	}
	if s.Interval > 0 {
		return "@every " + s.Interval.String()
	}
	return "@every " + fallback.String()
}
