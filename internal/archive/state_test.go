package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTransitionClosure walks every transition and checks it only ever
// lands on a known state, and that the final states have no exits.
func TestTransitionClosure(t *testing.T) {
	t.Parallel()

	known := make(map[State]bool)
	for _, s := range States() {
		known[s] = true
	}
	require.Len(t, known, 8)

	for from, nexts := range transitions {
		for _, to := range nexts {
			assert.Truef(t, known[to], "%s -> %s leaves the table", from, to)
		}
	}

	assert.Empty(t, transitions[StatePosted])
	assert.Empty(t, transitions[StateGivingUp])
	assert.True(t, StatePosted.Final())
	assert.True(t, StateGivingUp.Final())
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to State
		ok       bool
	}{
		{StatePending, StateRunning, true},
		{StatePending, StateSuccess, true},
		{StatePending, StateInvalidURL, true},
		{StatePending, StateError, false},
		{StateRunning, StateSuccess, true},
		{StateRunning, StateError, true},
		{StateSuccess, StateAlreadyBlocked, true},
		{StateSuccess, StateError, true},
		{StateSuccess, StatePosted, true},
		{StateError, StateSuccess, true},
		{StateError, StateAlreadyBlocked, true},
		{StateInvalidURL, StateGivingUp, true},
		{StatePosted, StateSuccess, false},
		{StateGivingUp, StatePending, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestReplyable(t *testing.T) {
	t.Parallel()

	for _, s := range []State{StateSuccess, StateError, StateAlreadyBlocked, StateInvalidURL} {
		assert.Truef(t, s.Replyable(), "%s", s)
	}
	for _, s := range []State{StatePending, StateRunning, StatePosted, StateGivingUp} {
		assert.Falsef(t, s.Replyable(), "%s", s)
	}
}

func TestRetentionFamilies(t *testing.T) {
	t.Parallel()

	assert.ElementsMatch(t,
		[]State{StatePosted, StateSuccess},
		SuccessFamilyStates(false))
	assert.ElementsMatch(t,
		[]State{StatePosted, StateSuccess, StatePending, StateRunning},
		SuccessFamilyStates(true))
	assert.ElementsMatch(t,
		[]State{StateAlreadyBlocked, StateError, StateInvalidURL},
		FailureFamilyStates())
}

func TestSiteMatches(t *testing.T) {
	t.Parallel()

	site := Site{Domain: "Example.com"}
	assert.True(t, site.Matches("https://www.example.com/article/1"))
	assert.True(t, site.Matches("https://EXAMPLE.COM/2"))
	assert.False(t, site.Matches("https://other.test/3"))
	assert.False(t, Site{}.Matches("https://example.com"))
}

func TestHashtagNewest(t *testing.T) {
	t.Parallel()

	var empty HashtagItem
	assert.Nil(t, empty.Newest())

	base := time.Unix(1700000000, 0).UTC()
	h := HashtagItem{Tag: "paywall", Items: []RequestItem{
		{SourceID: "a", CreatedAt: base},
		{SourceID: "b", CreatedAt: base.Add(48 * time.Hour)},
		{SourceID: "c", CreatedAt: base.Add(24 * time.Hour)},
	}}
	newest := h.Newest()
	require.NotNil(t, newest)
	assert.Equal(t, "b", newest.SourceID)
}
