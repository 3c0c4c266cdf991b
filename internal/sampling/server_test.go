package sampling

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
	"github.com/eigerco/katedas/internal/kzg"
)

func TestServerProofsVerifyAgainstExtendedCommitments(t *testing.T) {
	backend := newTestBackend(t)
	b, hash := produceTestBlock(t, backend, 1)
	srv := newTestServer(t, backend, newMemSource(b), nil)

	cells := []grid.Position{{Row: 3, Col: 7}, {Row: 0, Col: 0}, {Row: 2, Col: 5}}
	resp := srv.Handle(context.Background(), CellRequest{BlockHash: hash, Cells: cells})
	require.Equal(t, StatusOK, resp.Status, resp.Reason)
	require.Len(t, resp.Proofs, len(cells))

	rows, err := b.Header.Extension.RowCommitments()
	require.NoError(t, err)
	extended, err := kzg.ExtendCommitments(rows, testRowFactor)
	require.NoError(t, err)

	for i, c := range cells {
		value, err := kate.ScalarFromBytes(resp.Proofs[i].Data)
		require.NoError(t, err)
		cell := kzg.Cell{Position: c, Value: value, Proof: resp.Proofs[i].Proof}
		assert.NoError(t, backend.VerifySingle(extended[c.Row], cell, 8), "cell %s", c)
	}
}

func TestServerCacheKeepsRequestOrder(t *testing.T) {
	backend := newTestBackend(t)
	b, hash := produceTestBlock(t, backend, 1)
	source := newMemSource(b)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	srv := newTestServer(t, backend, source, metrics)

	a := grid.Position{Row: 1, Col: 2}
	c := grid.Position{Row: 3, Col: 4}
	first := srv.Handle(context.Background(), CellRequest{BlockHash: hash, Cells: []grid.Position{a, c}})
	second := srv.Handle(context.Background(), CellRequest{BlockHash: hash, Cells: []grid.Position{c, a}})
	require.Equal(t, StatusOK, first.Status)
	require.Equal(t, StatusOK, second.Status)

	assert.Equal(t, first.Proofs[0], second.Proofs[1])
	assert.Equal(t, first.Proofs[1], second.Proofs[0])
	assert.Equal(t, 1, source.gets)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.servedCells))
}

func TestServerFailures(t *testing.T) {
	backend := newTestBackend(t)
	b, hash := produceTestBlock(t, backend, 1)
	srv := newTestServer(t, backend, newMemSource(b), nil)

	tests := []struct {
		name string
		req  CellRequest
		want Status
	}{
		{
			name: "unknown block",
			req:  CellRequest{BlockHash: crypto.Hash{9}, Cells: []grid.Position{{}}},
			want: StatusNotFound,
		},
		{
			name: "cell outside extended grid",
			req:  CellRequest{BlockHash: hash, Cells: []grid.Position{{Row: 4, Col: 0}}},
			want: StatusBadRequest,
		},
		{
			name: "too many cells",
			req:  CellRequest{BlockHash: hash, Cells: make([]grid.Position, 65)},
			want: StatusBadRequest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := srv.Handle(context.Background(), tc.req)
			assert.Equal(t, tc.want, resp.Status)
			assert.NotEmpty(t, resp.Reason)
			assert.Empty(t, resp.Proofs)
		})
	}
}

func TestHandleCellRequestEncodesFailure(t *testing.T) {
	srv := newTestServer(t, newTestBackend(t), newMemSource(), nil)

	msg, err := EncodeRequest(CellRequest{BlockHash: crypto.Hash{3}, Cells: []grid.Position{{Row: 0, Col: 1}}})
	require.NoError(t, err)
	out, err := srv.HandleCellRequest(context.Background(), msg)
	require.NoError(t, err)
	resp, err := DecodeResponse(out)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, resp.Status)
	assert.Error(t, resp.Validate(CellRequest{Cells: []grid.Position{{}}}))
}

func TestServeRowsAndAppData(t *testing.T) {
	backend := newTestBackend(t)
	b, hash := produceTestBlock(t, backend, 1)
	srv := newTestServer(t, backend, newMemSource(b), nil)

	rows, err := srv.ServeRows(hash, []int{0, 3})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 8*kate.ChunkSize)

	_, err = srv.ServeRows(hash, []int{4})
	assert.ErrorIs(t, err, kzg.ErrCellLengthExceeded)

	g, err := b.Grid(testGridConfig)
	require.NoError(t, err)
	appRows, err := srv.ServeAppData(hash, 1)
	require.NoError(t, err)
	require.NotEmpty(t, appRows)
	for _, r := range appRows {
		want, err := g.RowBytes(r.Row)
		require.NoError(t, err)
		assert.Equal(t, want, r.Data)
	}

	none, err := srv.ServeAppData(hash, 42)
	require.NoError(t, err)
	assert.Empty(t, none)
}
