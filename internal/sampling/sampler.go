// Package sampling implements both roles of the cell sampling protocol: a
// proof server answering cell requests for locally held blocks, and a
// sampler that verifies imported headers by requesting random cells from
// peers and checking their proofs against the header commitments.
package sampling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/workerpool"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/eigerco/katedas/internal/block"
	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
	"github.com/eigerco/katedas/internal/kzg"
	"github.com/eigerco/katedas/pkg/log"
)

var (
	ErrNoPeers      = errors.New("no reserved peers to sample from")
	ErrStopped      = errors.New("sampler stopped")
	ErrUnknownBlock = errors.New("block not tracked")
	ErrNoSamples    = errors.New("no cells to sample")
)

// PeerID identifies a remote node.
type PeerID string

// Requester sends a cell request to one peer.
type Requester interface {
	RequestCells(ctx context.Context, peer PeerID, req CellRequest) (CellResponse, error)
}

// PeerSet lists the peers to sample from.
type PeerSet interface {
	ReservedPeers() []PeerID
}

// FinalityProvider reports the latest finalized block number. Blocks at or
// below it are no longer retried.
type FinalityProvider interface {
	Finalized() (uint32, error)
}

// Import is a header arriving from the chain.
type Import struct {
	Header block.Header
	// Own marks blocks produced by this node, which need no sampling.
	Own bool
}

type Config struct {
	SampleCount   int
	RowFactor     int
	PeerTimeout   time.Duration
	FixedAttempts int
	FixedDelay    time.Duration
	MaxDelay      time.Duration
	MaxAttempts   int
	RetryInterval time.Duration
	Workers       int
	// NodeKey seeds the choice of sample positions.
	NodeKey []byte
}

type Option func(*Sampler)

func WithClock(c clock.Clock) Option {
	return func(s *Sampler) { s.clock = c }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Sampler) { s.metrics = m }
}

func WithFinality(f FinalityProvider) Option {
	return func(s *Sampler) { s.finality = f }
}

// Sampler drives the verification state machine of every imported block.
type Sampler struct {
	cfg       Config
	strategy  retryStrategy
	verifier  kzg.Verifier
	requester Requester
	peers     PeerSet
	finality  FinalityProvider
	tracker   *Tracker
	clock     clock.Clock
	metrics   *Metrics
	pool      *workerpool.WorkerPool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// submitMu orders pool submissions against Stop.
	submitMu sync.Mutex
	stopped  atomic.Bool
}

func NewSampler(cfg Config, verifier kzg.Verifier, requester Requester, peers PeerSet, opts ...Option) *Sampler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sampler{
		cfg:       cfg,
		strategy:  newRetryStrategy(cfg.FixedAttempts, cfg.FixedDelay, cfg.MaxDelay, cfg.MaxAttempts),
		verifier:  verifier,
		requester: requester,
		peers:     peers,
		tracker:   NewTracker(),
		clock:     clock.New(),
		pool:      workerpool.New(max(cfg.Workers, 1)),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sampler) Tracker() *Tracker { return s.tracker }

// Run consumes imports until ctx is done or the channel is closed, and
// periodically retries unfinished blocks.
func (s *Sampler) Run(ctx context.Context, imports <-chan Import) error {
	s.wg.Add(1)
	go s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return ErrStopped
		case imp, ok := <-imports:
			if !ok {
				return nil
			}
			if _, err := s.Import(imp); err != nil {
				log.Sampling.Error().Err(err).Uint32("number", imp.Header.Number).Msg("failed to import header")
			}
		}
	}
}

// Import tracks a header and schedules its verification.
func (s *Sampler) Import(imp Import) (crypto.Hash, error) {
	if s.stopped.Load() {
		return crypto.Hash{}, ErrStopped
	}
	hash, state, err := s.Track(imp.Header, imp.Own)
	if err != nil {
		return hash, err
	}
	if !state.Final() && !s.submit(hash) {
		return hash, ErrStopped
	}
	return hash, nil
}

// Track starts tracking a header. Headers without application data and own
// blocks are verified at once without any network calls.
func (s *Sampler) Track(header block.Header, own bool) (crypto.Hash, State, error) {
	hash, err := header.Hash()
	if err != nil {
		return hash, 0, err
	}

	state := StatePending
	if own || header.Extension.DataLookup.IsEmpty() {
		state = StateVerified
	}
	if !s.tracker.Add(hash, header, state) {
		st, _ := s.tracker.State(hash)
		return hash, st, nil
	}
	if state == StateVerified {
		s.metrics.observeOutcome(state, time.Time{})
		log.Sampling.Debug().Str("hash", hash.Short()).Bool("own", own).Msg("block verified without sampling")
	}
	return hash, state, nil
}

// submit queues a verification of hash. It reports false once the sampler
// is stopped.
func (s *Sampler) submit(hash crypto.Hash) bool {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	if s.stopped.Load() {
		return false
	}
	s.pool.Submit(func() {
		if _, err := s.Verify(s.ctx, hash); err != nil && !errors.Is(err, context.Canceled) {
			log.Sampling.Warn().Err(err).Str("hash", hash.Short()).Msg("block sampling ended with error")
		}
	})
	return true
}

// Verify runs attempts for a tracked block until it reaches a final state or
// runs out of attempts. Only one Verify per block runs at a time, a second
// caller gets the current state back.
func (s *Sampler) Verify(ctx context.Context, hash crypto.Hash) (State, error) {
	header, ok := s.tracker.TryBegin(hash)
	if !ok {
		st, known := s.tracker.State(hash)
		if !known {
			return 0, ErrUnknownBlock
		}
		return st, nil
	}
	defer s.tracker.End(hash)

	peers := s.peers.ReservedPeers()
	if len(peers) == 0 {
		s.finish(hash, StateFailed, time.Time{})
		return StateFailed, ErrNoPeers
	}

	commitments, extDims, err := s.extendedCommitments(header)
	if err != nil {
		log.Sampling.Error().Err(err).Str("hash", hash.Short()).Msg("invalid header extension")
		s.finish(hash, StateFailed, time.Time{})
		return StateFailed, err
	}
	positions := s.tracker.Positions(hash, func() []grid.Position {
		return SamplePositions(s.cfg.NodeKey, hash, extDims, s.cfg.SampleCount)
	})
	if len(positions) == 0 {
		log.Sampling.Error().Str("hash", hash.Short()).Stringer("dims", extDims).Msg("no cells to sample")
		s.finish(hash, StateFailed, time.Time{})
		return StateFailed, ErrNoSamples
	}
	req := CellRequest{BlockHash: hash, Cells: positions}

	s.tracker.resetAttempts(hash)
	started := s.clock.Now()
	for {
		attempt := s.tracker.beginAttempt(hash)
		s.metrics.observeAttempt()

		clean, err := s.attempt(ctx, hash, req, peers, commitments, extDims)
		if err != nil {
			log.Sampling.Debug().Err(err).
				Str("hash", hash.Short()).
				Int("attempt", attempt).
				Msg("sampling attempt incomplete")
		}
		if clean && !s.tracker.hasFailures(hash) {
			s.finish(hash, StateVerified, started)
			return StateVerified, nil
		}

		delay, retry := s.strategy.nextRetry(attempt)
		if !retry {
			final := StateTimedOut
			if s.tracker.hasFailures(hash) {
				final = StateFailed
			}
			s.finish(hash, final, started)
			return final, nil
		}

		s.tracker.setState(hash, StatePending)
		select {
		case <-s.clock.After(delay):
		case <-ctx.Done():
			return StatePending, ctx.Err()
		}
		if s.stopped.Load() {
			return StatePending, ErrStopped
		}
	}
}

func (s *Sampler) finish(hash crypto.Hash, st State, started time.Time) {
	s.tracker.setState(hash, st)
	s.metrics.observeOutcome(st, started)

	ev := log.Sampling.Info()
	if st != StateVerified {
		ev = log.Sampling.Warn()
	}
	status, _ := s.tracker.Status(hash)
	ev.Str("hash", hash.Short()).
		Uint32("number", status.Number).
		Stringer("state", st).
		Int("attempts", status.Attempts).
		Int("failed_cells", len(status.FailedCells)).
		Msg("block sampling finished")
}

func (s *Sampler) extendedCommitments(header block.Header) ([]kzg.Commitment, grid.Dimensions, error) {
	ext := header.Extension
	if err := ext.Dimensions.Validate(); err != nil {
		return nil, grid.Dimensions{}, err
	}
	extDims, err := ext.Dimensions.Extended(s.cfg.RowFactor)
	if err != nil {
		return nil, grid.Dimensions{}, err
	}
	commitments, err := ext.RowCommitments()
	if err != nil {
		return nil, grid.Dimensions{}, err
	}
	extended, err := kzg.ExtendCommitments(commitments, s.cfg.RowFactor)
	if err != nil {
		return nil, grid.Dimensions{}, fmt.Errorf("extend commitments: %w", err)
	}
	return extended, extDims, nil
}

// attempt asks every peer concurrently. It reports whether every peer
// answered with only valid proofs. Per peer problems never abort the other
// requests and are returned combined.
func (s *Sampler) attempt(ctx context.Context, hash crypto.Hash, req CellRequest, peers []PeerID, commitments []kzg.Commitment, dims grid.Dimensions) (bool, error) {
	var (
		mu    sync.Mutex
		errs  error
		clean = true
	)
	g := errgroup.Group{}
	for _, peer := range peers {
		g.Go(func() error {
			state, err := s.samplePeer(ctx, hash, peer, req, commitments, dims)
			s.tracker.setPeer(hash, peer, state)
			s.metrics.observePeer(state)

			mu.Lock()
			defer mu.Unlock()
			if state != PeerVerified {
				clean = false
			}
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("peer %s: %w", peer, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return clean, errs
}

func (s *Sampler) samplePeer(ctx context.Context, hash crypto.Hash, peer PeerID, req CellRequest, commitments []kzg.Commitment, dims grid.Dimensions) (PeerState, error) {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.PeerTimeout)
	defer cancel()

	resp, err := s.requester.RequestCells(pctx, peer, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return PeerTimedOut, err
		}
		return PeerError, err
	}
	if err := resp.Validate(req); err != nil {
		return PeerError, err
	}

	var failed []grid.Position
	for i, pos := range req.Cells {
		if err := s.verifyCell(commitments, dims, pos, resp.Proofs[i]); err != nil {
			log.Sampling.Warn().Err(err).
				Str("hash", hash.Short()).
				Str("peer", string(peer)).
				Stringer("cell", pos).
				Uint32("row", pos.Row).
				Msg("cell proof rejected")
			failed = append(failed, pos)
		}
	}
	if len(failed) > 0 {
		s.tracker.recordFailures(hash, failed)
		s.metrics.observeFailedCells(len(failed))
		return PeerInvalidCells, nil
	}
	return PeerVerified, nil
}

func (s *Sampler) verifyCell(commitments []kzg.Commitment, dims grid.Dimensions, pos grid.Position, proof CellProof) error {
	if !dims.Contains(pos) {
		return fmt.Errorf("%w: %s", kzg.ErrCellLengthExceeded, pos)
	}
	value, err := kate.ScalarFromBytes(proof.Data)
	if err != nil {
		return err
	}
	cell := kzg.Cell{Position: pos, Value: value, Proof: proof.Proof}
	return s.verifier.VerifySingle(commitments[pos.Row], cell, dims.Cols)
}

// sweep retries unfinished blocks above the finalized number.
func (s *Sampler) sweep(ctx context.Context) {
	defer s.wg.Done()
	if s.cfg.RetryInterval <= 0 {
		return
	}
	ticker := s.clock.Ticker(s.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.retryUnfinished()
		}
	}
}

func (s *Sampler) retryUnfinished() {
	var finalized uint32
	if s.finality != nil {
		n, err := s.finality.Finalized()
		if err != nil {
			log.Sampling.Warn().Err(err).Msg("finalized number unavailable, skipping sweep")
			return
		}
		finalized = n
	}
	hashes := s.tracker.Retryable(finalized)
	if len(hashes) > 0 {
		log.Sampling.Debug().Int("blocks", len(hashes)).Uint32("finalized", finalized).Msg("retrying unfinished blocks")
	}
	for _, h := range hashes {
		s.submit(h)
	}
}

// Stop cancels pending work and waits for running verifications. No block
// is submitted once Stop has begun.
func (s *Sampler) Stop() {
	s.submitMu.Lock()
	already := s.stopped.Swap(true)
	s.submitMu.Unlock()
	if already {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.pool.StopWait()
}
