package protocol

import (
	"fmt"
	"strings"
)

const (
	protocolPrefix  = "katedas"
	currentVersion  = "1"
	lightSuffix     = "light"
	chainHashLength = 8
)

// ProtocolID is an ALPN protocol identifier of the form
// katedas/<version>/<chain-hash>[/light]. Light nodes only sample and never
// serve proofs.
type ProtocolID struct {
	Version   string
	ChainHash string
	Light     bool
}

func NewProtocolID(chainHash string, light bool) *ProtocolID {
	return &ProtocolID{
		Version:   currentVersion,
		ChainHash: chainHash,
		Light:     light,
	}
}

func (p *ProtocolID) String() string {
	parts := []string{protocolPrefix, p.Version, p.ChainHash}
	if p.Light {
		parts = append(parts, lightSuffix)
	}
	return strings.Join(parts, "/")
}

// ParseProtocolID parses and validates an ALPN protocol string.
func ParseProtocolID(protocol string) (*ProtocolID, error) {
	parts := strings.Split(protocol, "/")
	if len(parts) < 3 || len(parts) > 4 {
		return nil, fmt.Errorf("invalid protocol format: %s", protocol)
	}
	if parts[0] != protocolPrefix {
		return nil, fmt.Errorf("invalid protocol prefix: %s", parts[0])
	}
	if parts[1] != currentVersion {
		return nil, fmt.Errorf("unsupported protocol version: %s", parts[1])
	}
	if err := validateChainHash(parts[2]); err != nil {
		return nil, err
	}

	light := false
	if len(parts) == 4 {
		if parts[3] != lightSuffix {
			return nil, fmt.Errorf("invalid protocol suffix: %s", parts[3])
		}
		light = true
	}
	return &ProtocolID{Version: parts[1], ChainHash: parts[2], Light: light}, nil
}

func validateChainHash(h string) error {
	if len(h) != chainHashLength {
		return fmt.Errorf("invalid chain hash length: %s", h)
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("invalid chain hash character: %c", c)
		}
	}
	return nil
}

// AcceptableProtocols lists the full and light variants for a chain.
func AcceptableProtocols(chainHash string) []string {
	return []string{
		NewProtocolID(chainHash, false).String(),
		NewProtocolID(chainHash, true).String(),
	}
}
