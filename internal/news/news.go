// Package news holds the comparable content model: items, snapshots, the
// persisted sent set and the diff between what was sent and what is on the page.
package news

import "time"

// Mode selects how a source is compared between cycles.
type Mode string

const (
	ModeSet  Mode = "set"
	ModeHash Mode = "hash"
)

// Item is one discrete piece of content (article, post, question).
// ID is unique per source and is the only field used for dedup.
type Item struct {
	ID          string
	Title       string
	Link        string
	PublishedAt *time.Time
}

// Snapshot is the comparable form of one fetched resource.
// In hash mode only Hash is set, in set mode only Items (page order).
type Snapshot struct {
	Mode  Mode
	Hash  string
	Items []Item
}

// Empty reports whether the snapshot carries nothing to compare.
func (s Snapshot) Empty() bool {
	if s.Mode == ModeHash {
		return s.Hash == ""
	}
	return len(s.Items) == 0
}

// ChangedTitle is the title of the synthetic item emitted when a hashed page changes.
const ChangedTitle = "Page content changed"

// State is what gets persisted per source between cycles and restarts.
type State struct {
	Hash string
	Sent *SentSet
}

// NewState returns an empty state whose sent set holds at most maxItems identifiers.
func NewState(maxItems int) State {
	return State{Sent: NewSentSet(maxItems)}
}
