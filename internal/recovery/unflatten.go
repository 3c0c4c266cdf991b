package recovery

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
)

var (
	ErrInvalidLen       = errors.New("flat data is not a multiple of the chunk size")
	ErrRangeOutOfBounds = errors.New("layout range beyond flat data")
	ErrInvalidChunkSize = errors.New("invalid chunk size")
	ErrPayloadDecode    = errors.New("decode application payloads")
)

// UnflattenPaddedData splits flat grid bytes back into application payloads
// following layout. Only the first chunkSize-1 bytes of every chunk carry
// data. Trailing zero bytes of an application's range are stripped and a
// final padding tail marker is dropped before the SCALE decoding.
func UnflattenPaddedData(layout grid.Layout, flat []byte, chunkSize int) ([]grid.AppPayload, error) {
	if chunkSize < 2 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	if len(flat)%chunkSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes, chunk %d", ErrInvalidLen, len(flat), chunkSize)
	}

	var (
		out    []grid.AppPayload
		offset int
	)
	for _, entry := range layout {
		start := offset * chunkSize
		end := (offset + int(entry.Len)) * chunkSize
		if end > len(flat) {
			return nil, fmt.Errorf("%w: app %d needs [%d, %d) of %d", ErrRangeOutOfBounds, entry.AppID, start, end, len(flat))
		}
		offset += int(entry.Len)

		data := make([]byte, 0, int(entry.Len)*(chunkSize-1))
		for c := start; c < end; c += chunkSize {
			data = append(data, flat[c:c+chunkSize-1]...)
		}
		data = removePadding(data)

		var txs [][]byte
		if err := scale.Unmarshal(data, &txs); err != nil {
			return nil, fmt.Errorf("%w: app %d: %v", ErrPayloadDecode, entry.AppID, err)
		}
		for _, tx := range txs {
			out = append(out, grid.AppPayload{AppID: entry.AppID, Data: tx})
		}
	}
	return out, nil
}

// removePadding strips trailing zeros and then the tail marker if it is the
// last non-zero byte. Data without a marker is returned without its
// trailing zeros.
func removePadding(data []byte) []byte {
	data = bytes.TrimRight(data, "\x00")
	if n := len(data); n > 0 && data[n-1] == kate.PaddingTailValue {
		return data[:n-1]
	}
	return data
}

// DecodeGrid returns the payloads of an original, unextended grid.
func DecodeGrid(g *grid.EvaluationGrid) ([]grid.AppPayload, error) {
	return UnflattenPaddedData(g.Layout(), g.FlatBytes(), kate.ChunkSize)
}
