package duck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActiveReflectsCount(t *testing.T) {
	l := New()
	assert.False(t, l.Active())
	assert.Equal(t, 0, l.Snapshot().Count)

	l.Add("speech-1", KindSpeech)
	assert.True(t, l.Active())
	assert.Equal(t, 1, l.Snapshot().Count)

	l.Remove("speech-1")
	assert.False(t, l.Active())
}

func TestAddIsIdempotentOnSameID(t *testing.T) {
	l := New()
	l.Add("x", KindSpeech)
	l.Add("x", KindVideo)
	snap := l.Snapshot()
	assert.Equal(t, 1, snap.Count)
	assert.Equal(t, 1, snap.Kinds[KindVideo])
	assert.Equal(t, 0, snap.Kinds[KindSpeech])
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	l := New()
	l.Add("a", KindOther)
	l.Remove("does-not-exist")
	assert.Equal(t, 1, l.Snapshot().Count)
}

func TestAddRemoveRoundTrip(t *testing.T) {
	l := New()
	before := l.Snapshot()
	l.Add("speech-1", KindSpeech)
	l.Remove("speech-1")
	after := l.Snapshot()
	assert.Equal(t, before, after)
}

func TestClearRemovesEverything(t *testing.T) {
	l := New()
	l.Add("a", KindSpeech)
	l.Add("b", KindVideo)
	l.Clear()
	assert.False(t, l.Active())
	assert.Equal(t, 0, l.Snapshot().Count)
}

func TestSnapshotKindBreakdown(t *testing.T) {
	l := New()
	l.Add("s1", KindSpeech)
	l.Add("s2", KindSpeech)
	l.Add("v1", KindVideo)
	snap := l.Snapshot()
	assert.Equal(t, 3, snap.Count)
	assert.Equal(t, 2, snap.Kinds[KindSpeech])
	assert.Equal(t, 1, snap.Kinds[KindVideo])
	assert.Equal(t, 0, snap.Kinds[KindOther])
}

func TestAddAdjustedCarriesPerItemLevel(t *testing.T) {
	l := New()
	level := -30
	l.AddAdjusted("speech-1", KindSpeech, &level)
	l.Add("video-1", KindVideo)

	entries := l.Entries()
	assert.Len(t, entries, 2)
	if assert.NotNil(t, entries["speech-1"].Adjust) {
		assert.Equal(t, -30, *entries["speech-1"].Adjust)
	}
	assert.Nil(t, entries["video-1"].Adjust)
	assert.Equal(t, KindVideo, entries["video-1"].Kind)
}
