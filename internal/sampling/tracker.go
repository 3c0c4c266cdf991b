package sampling

import (
	"slices"
	"sync"

	"github.com/eigerco/katedas/internal/block"
	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
)

// State is the verification state of a block.
type State uint8

const (
	StatePending State = iota
	StateInProgress
	StateVerified
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInProgress:
		return "in_progress"
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Final reports whether no further attempt will change the state.
func (s State) Final() bool {
	return s == StateVerified || s == StateFailed
}

// PeerState is the outcome of the last request sent to a peer for a block.
type PeerState uint8

const (
	PeerPending PeerState = iota
	PeerVerified
	PeerInvalidCells
	PeerTimedOut
	PeerError
)

// BlockStatus is a snapshot of a tracked block.
type BlockStatus struct {
	Number      uint32
	State       State
	Attempts    int
	Positions   []grid.Position
	FailedCells []grid.Position
	Peers       map[PeerID]PeerState
}

type trackedBlock struct {
	header    block.Header
	state     State
	attempts  int
	inFlight  bool
	positions []grid.Position
	failed    map[grid.Position]struct{}
	peers     map[PeerID]PeerState
}

// Tracker holds the verification state of every known block behind a single
// lock.
type Tracker struct {
	mu     sync.RWMutex
	blocks map[crypto.Hash]*trackedBlock
}

func NewTracker() *Tracker {
	return &Tracker{blocks: make(map[crypto.Hash]*trackedBlock)}
}

// Add starts tracking a block in state. It returns false if the block was
// already known, leaving it untouched.
func (t *Tracker) Add(hash crypto.Hash, header block.Header, state State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.blocks[hash]; ok {
		return false
	}
	t.blocks[hash] = &trackedBlock{
		header: header,
		state:  state,
		failed: make(map[grid.Position]struct{}),
		peers:  make(map[PeerID]PeerState),
	}
	return true
}

func (t *Tracker) State(hash crypto.Hash) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.blocks[hash]
	if !ok {
		return 0, false
	}
	return b.state, true
}

func (t *Tracker) Status(hash crypto.Hash) (BlockStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.blocks[hash]
	if !ok {
		return BlockStatus{}, false
	}
	st := BlockStatus{
		Number:    b.header.Number,
		State:     b.state,
		Attempts:  b.attempts,
		Positions: slices.Clone(b.positions),
		Peers:     make(map[PeerID]PeerState, len(b.peers)),
	}
	for p := range b.failed {
		st.FailedCells = append(st.FailedCells, p)
	}
	slices.SortFunc(st.FailedCells, comparePositions)
	for id, s := range b.peers {
		st.Peers[id] = s
	}
	return st, true
}

// TryBegin marks the block as having an attempt in flight. It fails if one
// is already running, the block is final or unknown.
func (t *Tracker) TryBegin(hash crypto.Hash) (block.Header, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.blocks[hash]
	if !ok || b.inFlight || b.state.Final() {
		return block.Header{}, false
	}
	b.inFlight = true
	return b.header, true
}

// End clears the in-flight mark set by TryBegin.
func (t *Tracker) End(hash crypto.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.blocks[hash]; ok {
		b.inFlight = false
	}
}

// Positions returns the sample positions of the block, choosing them with
// pick on first use.
func (t *Tracker) Positions(hash crypto.Hash, pick func() []grid.Position) []grid.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.blocks[hash]
	if !ok {
		return nil
	}
	if b.positions == nil {
		b.positions = pick()
	}
	return slices.Clone(b.positions)
}

func (t *Tracker) setState(hash crypto.Hash, s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.blocks[hash]; ok {
		b.state = s
	}
}

// beginAttempt moves the block in progress and returns the attempt number.
func (t *Tracker) beginAttempt(hash crypto.Hash) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.blocks[hash]
	if !ok {
		return 0
	}
	b.attempts++
	b.state = StateInProgress
	return b.attempts
}

func (t *Tracker) resetAttempts(hash crypto.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.blocks[hash]; ok {
		b.attempts = 0
	}
}

func (t *Tracker) setPeer(hash crypto.Hash, peer PeerID, s PeerState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.blocks[hash]; ok {
		b.peers[peer] = s
	}
}

// recordFailures adds cells to the failed set of the block. Failures are
// never cleared.
func (t *Tracker) recordFailures(hash crypto.Hash, cells []grid.Position) {
	if len(cells) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.blocks[hash]; ok {
		for _, c := range cells {
			b.failed[c] = struct{}{}
		}
	}
}

func (t *Tracker) hasFailures(hash crypto.Hash) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.blocks[hash]
	return ok && len(b.failed) > 0
}

// Retryable lists blocks above finalized that are neither final nor in
// flight.
func (t *Tracker) Retryable(finalized uint32) []crypto.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []crypto.Hash
	for h, b := range t.blocks {
		if b.inFlight || b.state.Final() || b.header.Number <= finalized {
			continue
		}
		out = append(out, h)
	}
	return out
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.blocks)
}

func comparePositions(a, b grid.Position) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}
