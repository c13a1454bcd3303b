package news

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(ids ...string) []Item {
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, Item{ID: id, Title: "title " + id, Link: id})
	}
	return out
}

func ids(list []Item) []string {
	out := make([]string, 0, len(list))
	for _, it := range list {
		out = append(out, it.ID)
	}
	return out
}

func TestDiff_EmptyHistoryReportsEverything(t *testing.T) {
	prev := NewState(10)
	got := Diff(prev, Snapshot{Mode: ModeSet, Items: items("a", "b")}, "")
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestDiff_OnlyUnseenInPageOrder(t *testing.T) {
	prev := State{Sent: SentSetFrom([]string{"a", "b"}, 10)}
	got := Diff(prev, Snapshot{Mode: ModeSet, Items: items("d", "a", "b", "c")}, "")
	assert.Equal(t, []string{"d", "c"}, ids(got))
}

func TestDiff_DuplicatesOnPageReportedOnce(t *testing.T) {
	got := Diff(NewState(10), Snapshot{Mode: ModeSet, Items: items("a", "b", "a")}, "")
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestDiff_ExactStringComparison(t *testing.T) {
	prev := State{Sent: SentSetFrom([]string{"https://x.test/a"}, 10)}
	got := Diff(prev, Snapshot{Mode: ModeSet, Items: items("https://x.test/a/", "https://x.test/a?x=1")}, "")
	assert.Len(t, got, 2)
}

func TestDiff_Idempotent(t *testing.T) {
	prev := State{Sent: SentSetFrom([]string{"a"}, 10)}
	cur := Snapshot{Mode: ModeSet, Items: items("a", "b", "c")}
	first := Diff(prev, cur, "")
	second := Diff(prev, cur, "")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, prev.Sent.Len(), "diff must not mutate the sent set")
}

func TestDiff_NeverReturnsSentIDs(t *testing.T) {
	sent := []string{"a", "c", "e"}
	prev := State{Sent: SentSetFrom(sent, 10)}
	got := Diff(prev, Snapshot{Mode: ModeSet, Items: items("a", "b", "c", "d", "e")}, "")
	for _, it := range got {
		assert.NotContains(t, sent, it.ID)
	}
}

func TestDiff_HashMode(t *testing.T) {
	t.Run("same hash", func(t *testing.T) {
		got := Diff(State{Hash: "X"}, Snapshot{Mode: ModeHash, Hash: "X"}, "https://x.test")
		assert.Empty(t, got)
	})
	t.Run("changed hash", func(t *testing.T) {
		got := Diff(State{Hash: "X"}, Snapshot{Mode: ModeHash, Hash: "Y"}, "https://x.test")
		require.Len(t, got, 1)
		assert.Equal(t, "Y", got[0].ID)
		assert.Equal(t, ChangedTitle, got[0].Title)
		assert.Equal(t, "https://x.test", got[0].Link)
	})
	t.Run("baseline", func(t *testing.T) {
		got := Diff(State{}, Snapshot{Mode: ModeHash, Hash: "Y"}, "https://x.test")
		assert.Empty(t, got)
	})
}

func TestSentSet_CapEvictsOldest(t *testing.T) {
	s := NewSentSet(3)
	for i := 0; i < 10; i++ {
		s.Add(fmt.Sprintf("id-%d", i))
		assert.LessOrEqual(t, s.Len(), 3)
	}
	assert.Equal(t, []string{"id-7", "id-8", "id-9"}, s.IDs())
}

func TestSentSet_TouchProtectsFromEviction(t *testing.T) {
	s := SentSetFrom([]string{"a", "b", "c"}, 3)
	require.True(t, s.Touch("a"))
	assert.False(t, s.Touch("zzz"))
	s.Add("d")
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("b"))
	assert.Equal(t, []string{"c", "a", "d"}, s.IDs())
}

func TestSentSetFrom_KeepsNewest(t *testing.T) {
	s := SentSetFrom([]string{"1", "2", "3", "4"}, 2)
	assert.Equal(t, []string{"3", "4"}, s.IDs())
}

func TestSentSet_DefaultCap(t *testing.T) {
	assert.Equal(t, DefaultMaxItems, NewSentSet(0).Cap())
}

func TestSentSet_CloneIsIndependent(t *testing.T) {
	s := SentSetFrom([]string{"a"}, 5)
	c := s.Clone()
	c.Add("b")
	assert.False(t, s.Contains("b"))
	assert.True(t, c.Contains("a"))
}
