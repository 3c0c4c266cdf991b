package protocol

import (
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/eigerco/katedas/pkg/log"
)

type Config struct {
	// ChainHash is the 8 nibble chain identifier negotiated over ALPN
	ChainHash string
	Light     bool
}

// Manager negotiates the protocol of new connections and serves their
// inbound streams.
type Manager struct {
	Registry *Registry
	config   Config
}

func NewManager(config Config) (*Manager, error) {
	if err := validateChainHash(config.ChainHash); err != nil {
		return nil, fmt.Errorf("invalid chain hash: %w", err)
	}
	return &Manager{Registry: NewRegistry(), config: config}, nil
}

// OnConnection wraps conn and starts accepting its streams.
func (m *Manager) OnConnection(conn StreamConn) *ProtocolConn {
	pc := NewProtocolConn(conn, m.Registry)
	go m.acceptStreams(pc)
	return pc
}

func (m *Manager) acceptStreams(pc *ProtocolConn) {
	defer pc.Close()
	for {
		err := pc.AcceptStream()
		if err == nil {
			continue
		}
		if errors.Is(err, ErrAcceptFailed) || pc.conn.Context().Err() != nil {
			log.Network.Debug().Err(err).Msg("connection closed")
			return
		}
		log.Network.Debug().Err(err).Msg("stream rejected")
	}
}

func (m *Manager) Protocols() []string {
	if m.config.Light {
		return []string{NewProtocolID(m.config.ChainHash, true).String()}
	}
	return AcceptableProtocols(m.config.ChainHash)
}

// ValidateConnection checks the negotiated protocol belongs to our chain.
func (m *Manager) ValidateConnection(state tls.ConnectionState) error {
	if state.NegotiatedProtocol == "" {
		return fmt.Errorf("no protocol negotiated")
	}
	id, err := ParseProtocolID(state.NegotiatedProtocol)
	if err != nil {
		return fmt.Errorf("invalid protocol: %w", err)
	}
	if id.ChainHash != m.config.ChainHash {
		return fmt.Errorf("chain hash mismatch: got %s, want %s", id.ChainHash, m.config.ChainHash)
	}
	return nil
}
