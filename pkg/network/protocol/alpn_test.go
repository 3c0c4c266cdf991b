package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocolIDString(t *testing.T) {
	assert.Equal(t, "katedas/1/abcd1234", NewProtocolID("abcd1234", false).String())
	assert.Equal(t, "katedas/1/abcd1234/light", NewProtocolID("abcd1234", true).String())
}

func TestParseProtocolID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *ProtocolID
		wantErr bool
	}{
		{name: "full node", input: "katedas/1/abcd1234", want: &ProtocolID{Version: "1", ChainHash: "abcd1234"}},
		{name: "light node", input: "katedas/1/00ff00ff/light", want: &ProtocolID{Version: "1", ChainHash: "00ff00ff", Light: true}},
		{name: "wrong prefix", input: "jamnp-s/1/abcd1234", wantErr: true},
		{name: "wrong version", input: "katedas/0/abcd1234", wantErr: true},
		{name: "short chain hash", input: "katedas/1/abc", wantErr: true},
		{name: "upper case chain hash", input: "katedas/1/ABCD1234", wantErr: true},
		{name: "bad suffix", input: "katedas/1/abcd1234/builder", wantErr: true},
		{name: "too many parts", input: "katedas/1/abcd1234/light/x", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseProtocolID(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.input, got.String())
		})
	}
}

func TestAcceptableProtocols(t *testing.T) {
	assert.Equal(t, []string{"katedas/1/12345678", "katedas/1/12345678/light"}, AcceptableProtocols("12345678"))
}
