package recovery

import (
	"bytes"
	"testing"

	"github.com/ChainSafe/gossamer/pkg/scale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
)

func TestBuildUnflattenRoundTrip(t *testing.T) {
	sizes := []int{
		0, 1, 2,
		kate.DataChunkSize - 1, kate.DataChunkSize, kate.DataChunkSize + 1,
		2 * kate.DataChunkSize, 3*kate.DataChunkSize - 3, 5 * kate.DataChunkSize,
		kate.ChunkSize, 4 * kate.ChunkSize,
	}
	for _, size := range sizes {
		payloads := []grid.AppPayload{
			{AppID: 0, Data: bytes.Repeat([]byte{1}, size)},
			{AppID: 3, Data: bytes.Repeat([]byte{0}, size)},
			{AppID: 3, Data: bytes.Repeat([]byte{kate.PaddingTailValue}, size)},
			{AppID: 9, Data: bytes.Repeat([]byte{0xff}, size)},
		}
		g, err := grid.Build(payloads, 4, 256, 256, crypto.Seed{byte(size)})
		require.NoError(t, err)

		got, err := DecodeGrid(g)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, payloads, normalize(got), "size %d", size)
	}
}

func TestUnflattenReordersByApp(t *testing.T) {
	payloads := []grid.AppPayload{
		{AppID: 7, Data: []byte("seven")},
		{AppID: 2, Data: []byte("two")},
		{AppID: 7, Data: []byte("seven again")},
	}
	g, err := grid.Build(payloads, 4, 256, 256, crypto.Seed{})
	require.NoError(t, err)

	got, err := DecodeGrid(g)
	require.NoError(t, err)
	assert.Equal(t, []grid.AppPayload{payloads[1], payloads[0], payloads[2]}, got)
}

func TestUnflattenErrors(t *testing.T) {
	_, err := UnflattenPaddedData(nil, make([]byte, 33), kate.ChunkSize)
	assert.ErrorIs(t, err, ErrInvalidLen)

	layout := grid.Layout{{AppID: 1, Len: 3}}
	_, err = UnflattenPaddedData(layout, make([]byte, 2*kate.ChunkSize), kate.ChunkSize)
	assert.ErrorIs(t, err, ErrRangeOutOfBounds)

	_, err = UnflattenPaddedData(layout, make([]byte, 2), 1)
	assert.ErrorIs(t, err, ErrInvalidChunkSize)
}

// Without a tail marker, data ending in zero bytes cannot be told apart from
// padding and loses them.
func TestUnflattenWithoutTailMarker(t *testing.T) {
	encoded, err := scale.Marshal([][]byte{{1, 0}, {}})
	require.NoError(t, err)
	require.Equal(t, byte(0), encoded[len(encoded)-1])

	chunk := make([]byte, kate.ChunkSize)
	copy(chunk, encoded)
	_, err = UnflattenPaddedData(grid.Layout{{AppID: 1, Len: 1}}, chunk, kate.ChunkSize)
	assert.ErrorIs(t, err, ErrPayloadDecode)

	// the marker protects the same payload
	copy(chunk, append(encoded, kate.PaddingTailValue))
	got, err := UnflattenPaddedData(grid.Layout{{AppID: 1, Len: 1}}, chunk, kate.ChunkSize)
	require.NoError(t, err)
	assert.Equal(t, []grid.AppPayload{{AppID: 1, Data: []byte{1, 0}}, {AppID: 1, Data: []byte{}}}, normalize(got))
}

// normalize maps nil payload data to empty slices, matching the builder
// input literals.
func normalize(ps []grid.AppPayload) []grid.AppPayload {
	for i := range ps {
		if ps[i].Data == nil {
			ps[i].Data = []byte{}
		}
	}
	return ps
}
