// Package peer runs a network node: it owns the transport, tracks connected
// peers and exposes the sampling requests over QUIC streams.
package peer

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"

	"github.com/eigerco/katedas/internal/block"
	"github.com/eigerco/katedas/internal/sampling"
	"github.com/eigerco/katedas/pkg/log"
	"github.com/eigerco/katedas/pkg/network/cert"
	"github.com/eigerco/katedas/pkg/network/handlers"
	"github.com/eigerco/katedas/pkg/network/protocol"
	"github.com/eigerco/katedas/pkg/network/transport"
)

var ErrUnknownPeer = errors.New("peer not connected")

type Config struct {
	ListenAddr string
	ChainHash  string
	// Light nodes sample only and register no proof serving handlers.
	Light   bool
	KeySeed [32]byte
	// CertValidity is the lifetime of the node certificate.
	CertValidity time.Duration
	// AnnouncementBuffer sizes the inbound header channel.
	AnnouncementBuffer int
}

// Servers are the local services exposed to peers. Nil members are not
// served.
type Servers struct {
	Cells handlers.CellServer
	Rows  handlers.RowServer
}

// Node manages peer connections and implements sampling.Requester and
// sampling.PeerSet over them.
type Node struct {
	transport     *transport.Transport
	manager       *protocol.Manager
	peers         *PeerSet
	key           ed25519.PublicKey
	announcements chan handlers.Announcement
	cells         *handlers.CellRequester
	rows          *handlers.RowRequester
	announcer     *handlers.HeaderAnnouncer
}

var (
	_ sampling.Requester = (*Node)(nil)
	_ sampling.PeerSet   = (*Node)(nil)
)

func NewNode(cfg Config, servers Servers) (*Node, error) {
	pub, priv, err := cert.KeyFromSeed(cfg.KeySeed)
	if err != nil {
		return nil, fmt.Errorf("derive node key: %w", err)
	}
	validity := cfg.CertValidity
	if validity == 0 {
		validity = 24 * time.Hour
	}
	tlsCert, err := cert.Generate(cert.Config{PublicKey: pub, PrivateKey: priv, ValidityPeriod: validity})
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}

	manager, err := protocol.NewManager(protocol.Config{ChainHash: cfg.ChainHash, Light: cfg.Light})
	if err != nil {
		return nil, fmt.Errorf("failed to create protocol manager: %w", err)
	}

	n := &Node{
		manager:       manager,
		peers:         NewPeerSet(),
		key:           pub,
		announcements: make(chan handlers.Announcement, max(cfg.AnnouncementBuffer, 1)),
		cells:         handlers.NewCellRequester(),
		rows:          handlers.NewRowRequester(),
		announcer:     handlers.NewHeaderAnnouncer(),
	}

	manager.Registry.RegisterHandler(protocol.StreamKindHeaderAnnouncement, handlers.NewHeaderAnnouncementHandler(n.announcements))
	if !cfg.Light && servers.Cells != nil {
		manager.Registry.RegisterHandler(protocol.StreamKindCellRequest, handlers.NewCellRequestHandler(servers.Cells))
	}
	if !cfg.Light && servers.Rows != nil {
		manager.Registry.RegisterHandler(protocol.StreamKindRowRequest, handlers.NewRowRequestHandler(servers.Rows))
	}

	tr, err := transport.NewTransport(transport.Config{
		TLSCert:       tlsCert,
		ListenAddr:    cfg.ListenAddr,
		CertValidator: cert.NewValidator(),
		Handler:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	n.transport = tr
	return n, nil
}

// ID is this node's identifier as seen by its peers.
func (n *Node) ID() sampling.PeerID {
	return sampling.PeerID(transport.EncodeKey(n.key))
}

func (n *Node) Start() error {
	if err := n.transport.Start(); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	return nil
}

func (n *Node) Stop() error {
	return n.transport.Stop()
}

func (n *Node) Addr() (net.Addr, error) {
	return n.transport.Addr()
}

// Announcements delivers headers announced by peers.
func (n *Node) Announcements() <-chan handlers.Announcement {
	return n.announcements
}

// OnConnection registers a new authenticated connection as a peer. Inbound
// peers are not reserved.
func (n *Node) OnConnection(conn *transport.Conn) error {
	p := &Peer{
		ProtoConn:  n.manager.OnConnection(conn),
		Address:    conn.QConn().RemoteAddr(),
		Ed25519Key: conn.PeerKey(),
	}
	n.peers.AddPeer(p)
	go func() {
		<-conn.Context().Done()
		n.peers.RemovePeer(p)
		log.Network.Debug().Str("peer", string(p.ID())).Msg("peer disconnected")
	}()
	log.Network.Info().Str("peer", string(p.ID())).Stringer("addr", p.Address).Msg("peer connected")
	return nil
}

func (n *Node) Protocols() []string {
	return n.manager.Protocols()
}

func (n *Node) ValidateConnection(state tls.ConnectionState) error {
	return n.manager.ValidateConnection(state)
}

// ConnectToPeer dials addr and marks the peer reserved.
func (n *Node) ConnectToPeer(ctx context.Context, addr string) (sampling.PeerID, error) {
	if existing := n.peers.GetByAddress(addr); existing != nil {
		n.peers.MarkReserved(existing.Ed25519Key)
		return existing.ID(), nil
	}
	conn, err := n.transport.Connect(ctx, addr)
	if err != nil {
		return "", fmt.Errorf("failed to connect to peer: %w", err)
	}
	if !n.peers.MarkReserved(conn.PeerKey()) {
		return "", fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
	}
	return sampling.PeerID(transport.EncodeKey(conn.PeerKey())), nil
}

// ConnectReserved dials every address, returning the combined failures.
func (n *Node) ConnectReserved(ctx context.Context, addrs []string) error {
	var errs error
	for _, addr := range addrs {
		if _, err := n.ConnectToPeer(ctx, addr); err != nil {
			log.Network.Warn().Err(err).Str("addr", addr).Msg("reserved peer unreachable")
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (n *Node) ReservedPeers() []sampling.PeerID {
	return n.peers.Reserved()
}

func (n *Node) Peers() *PeerSet {
	return n.peers
}

// RequestCells sends a CE-200 request to peer.
func (n *Node) RequestCells(ctx context.Context, peer sampling.PeerID, req sampling.CellRequest) (sampling.CellResponse, error) {
	p := n.peers.GetByID(peer)
	if p == nil {
		return sampling.CellResponse{}, fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	stream, err := p.ProtoConn.OpenStream(ctx, protocol.StreamKindCellRequest)
	if err != nil {
		return sampling.CellResponse{}, fmt.Errorf("failed to open stream: %w", err)
	}
	resp, err := n.cells.RequestCells(ctx, stream, req)
	if err != nil {
		stream.CancelRead(0)
		return sampling.CellResponse{}, err
	}
	return resp, nil
}

// RequestRows sends a CE-201 request to peer.
func (n *Node) RequestRows(ctx context.Context, peer sampling.PeerID, req handlers.RowRequest) ([][]byte, error) {
	p := n.peers.GetByID(peer)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	stream, err := p.ProtoConn.OpenStream(ctx, protocol.StreamKindRowRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	rows, err := n.rows.RequestRows(ctx, stream, req)
	if err != nil {
		stream.CancelRead(0)
		return nil, err
	}
	return rows, nil
}

// Announce sends header to every connected peer.
func (n *Node) Announce(ctx context.Context, header block.Header) error {
	var errs error
	for _, p := range n.peers.GetAllPeers() {
		stream, err := p.ProtoConn.OpenStream(ctx, protocol.StreamKindHeaderAnnouncement)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("peer %s: %w", p.ID(), err))
			continue
		}
		if err := n.announcer.Announce(ctx, stream, header); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("peer %s: %w", p.ID(), err))
		}
	}
	return errs
}
