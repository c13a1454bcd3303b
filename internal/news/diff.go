package news

// Diff returns the items of current that have not been notified yet.
//
// Hash mode yields a single synthetic item when the hash differs from the
// recorded one. A state without a recorded hash is a baseline: nothing is
// reported, the caller records the hash. Set mode yields every item whose ID
// is not in the sent set, in page order, each ID at most once.
//
// Diff does not mutate prev and always returns the same result for the same input.
func Diff(prev State, current Snapshot, link string) []Item {
	if current.Mode == ModeHash {
		if current.Hash == "" || prev.Hash == "" || current.Hash == prev.Hash {
			return nil
		}
		return []Item{{ID: current.Hash, Title: ChangedTitle, Link: link}}
	}

	var fresh []Item
	seen := make(map[string]struct{}, len(current.Items))
	for _, it := range current.Items {
		if it.ID == "" {
			continue
		}
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		if prev.Sent != nil && prev.Sent.Contains(it.ID) {
			continue
		}
		fresh = append(fresh, it)
	}
	return fresh
}
