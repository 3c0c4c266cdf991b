package sampling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/katedas/internal/block"
	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
)

func TestTrackerAddIsIdempotent(t *testing.T) {
	tr := NewTracker()
	h := crypto.Hash{1}

	assert.True(t, tr.Add(h, block.Header{Number: 1}, StatePending))
	assert.False(t, tr.Add(h, block.Header{Number: 2}, StateVerified))

	st, ok := tr.Status(h)
	require.True(t, ok)
	assert.Equal(t, uint32(1), st.Number)
	assert.Equal(t, StatePending, st.State)
	assert.Equal(t, 1, tr.Len())

	_, ok = tr.State(crypto.Hash{2})
	assert.False(t, ok)
}

func TestTrackerSingleAttemptInFlight(t *testing.T) {
	tr := NewTracker()
	h := crypto.Hash{1}
	tr.Add(h, block.Header{Number: 4}, StatePending)

	header, ok := tr.TryBegin(h)
	require.True(t, ok)
	assert.Equal(t, uint32(4), header.Number)
	_, ok = tr.TryBegin(h)
	assert.False(t, ok)

	tr.End(h)
	_, ok = tr.TryBegin(h)
	assert.True(t, ok)
	tr.End(h)

	tr.setState(h, StateVerified)
	_, ok = tr.TryBegin(h)
	assert.False(t, ok, "final blocks are not attempted again")

	_, ok = tr.TryBegin(crypto.Hash{9})
	assert.False(t, ok)
}

func TestTrackerAttemptsAndFailures(t *testing.T) {
	tr := NewTracker()
	h := crypto.Hash{1}
	tr.Add(h, block.Header{}, StatePending)

	assert.Equal(t, 1, tr.beginAttempt(h))
	assert.Equal(t, 2, tr.beginAttempt(h))
	st, _ := tr.State(h)
	assert.Equal(t, StateInProgress, st)
	tr.resetAttempts(h)
	assert.Equal(t, 1, tr.beginAttempt(h))

	assert.False(t, tr.hasFailures(h))
	tr.recordFailures(h, []grid.Position{{Row: 2, Col: 1}, {Row: 0, Col: 3}})
	tr.recordFailures(h, []grid.Position{{Row: 2, Col: 1}})
	tr.setPeer(h, "a", PeerInvalidCells)
	assert.True(t, tr.hasFailures(h))

	status, ok := tr.Status(h)
	require.True(t, ok)
	assert.Equal(t, []grid.Position{{Row: 0, Col: 3}, {Row: 2, Col: 1}}, status.FailedCells)
	assert.Equal(t, map[PeerID]PeerState{"a": PeerInvalidCells}, status.Peers)
}

func TestTrackerPositionsChosenOnce(t *testing.T) {
	tr := NewTracker()
	h := crypto.Hash{1}
	tr.Add(h, block.Header{}, StatePending)

	calls := 0
	pick := func() []grid.Position {
		calls++
		return []grid.Position{{Row: 1, Col: 1}}
	}
	first := tr.Positions(h, pick)
	second := tr.Positions(h, pick)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Nil(t, tr.Positions(crypto.Hash{5}, pick))
}

func TestTrackerRetryable(t *testing.T) {
	tr := NewTracker()
	tr.Add(crypto.Hash{1}, block.Header{Number: 10}, StateTimedOut)
	tr.Add(crypto.Hash{2}, block.Header{Number: 11}, StatePending)
	tr.Add(crypto.Hash{3}, block.Header{Number: 12}, StateVerified)
	tr.Add(crypto.Hash{4}, block.Header{Number: 13}, StateFailed)
	tr.Add(crypto.Hash{5}, block.Header{Number: 14}, StatePending)
	_, ok := tr.TryBegin(crypto.Hash{5})
	require.True(t, ok)

	assert.ElementsMatch(t, []crypto.Hash{{1}, {2}}, tr.Retryable(0))
	assert.ElementsMatch(t, []crypto.Hash{{2}}, tr.Retryable(10))
	assert.Empty(t, tr.Retryable(20))
}

func TestStateFinal(t *testing.T) {
	assert.True(t, StateVerified.Final())
	assert.True(t, StateFailed.Final())
	assert.False(t, StateTimedOut.Final())
	assert.False(t, StatePending.Final())
	assert.Equal(t, "timed_out", StateTimedOut.String())
}
