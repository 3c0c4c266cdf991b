package peer

import (
	"crypto/ed25519"
	"net"
	"sort"
	"sync"

	"github.com/eigerco/katedas/internal/sampling"
	"github.com/eigerco/katedas/pkg/network/protocol"
	"github.com/eigerco/katedas/pkg/network/transport"
)

// Peer is a connected remote node.
type Peer struct {
	ProtoConn  *protocol.ProtocolConn
	Address    net.Addr
	Ed25519Key ed25519.PublicKey
	// Reserved peers are the ones sampled from.
	Reserved bool
}

// ID is the peer identifier used by the sampler.
func (p *Peer) ID() sampling.PeerID {
	return sampling.PeerID(transport.EncodeKey(p.Ed25519Key))
}

// PeerSet indexes peers by key and address. It is safe for concurrent use.
type PeerSet struct {
	mu           sync.RWMutex
	byEd25519Key map[string]*Peer
	byAddress    map[string]*Peer
}

func NewPeerSet() *PeerSet {
	return &PeerSet{
		byEd25519Key: make(map[string]*Peer),
		byAddress:    make(map[string]*Peer),
	}
}

// AddPeer stores peer and returns the peer it replaced, if any. A replaced
// reserved peer keeps its reservation.
func (ps *PeerSet) AddPeer(peer *Peer) *Peer {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	old := ps.byEd25519Key[string(peer.Ed25519Key)]
	if old != nil {
		peer.Reserved = peer.Reserved || old.Reserved
		if old.Address != nil {
			delete(ps.byAddress, old.Address.String())
		}
	}
	ps.byEd25519Key[string(peer.Ed25519Key)] = peer
	if peer.Address != nil {
		ps.byAddress[peer.Address.String()] = peer
	}
	return old
}

// RemovePeer removes peer unless it was already replaced.
func (ps *PeerSet) RemovePeer(peer *Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.byEd25519Key[string(peer.Ed25519Key)] != peer {
		return
	}
	delete(ps.byEd25519Key, string(peer.Ed25519Key))
	if peer.Address != nil {
		delete(ps.byAddress, peer.Address.String())
	}
}

func (ps *PeerSet) GetByEd25519Key(key ed25519.PublicKey) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.byEd25519Key[string(key)]
}

func (ps *PeerSet) GetByAddress(addr string) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.byAddress[addr]
}

// GetByID looks a peer up by its sampler identifier.
func (ps *PeerSet) GetByID(id sampling.PeerID) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, p := range ps.byEd25519Key {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

// GetAllPeers returns the peers ordered by ID.
func (ps *PeerSet) GetAllPeers() []*Peer {
	ps.mu.RLock()
	peers := make([]*Peer, 0, len(ps.byEd25519Key))
	for _, p := range ps.byEd25519Key {
		peers = append(peers, p)
	}
	ps.mu.RUnlock()
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID() < peers[j].ID() })
	return peers
}

// MarkReserved reserves the peer with key. It reports whether the peer is
// known.
func (ps *PeerSet) MarkReserved(key ed25519.PublicKey) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.byEd25519Key[string(key)]
	if ok {
		p.Reserved = true
	}
	return ok
}

// Reserved returns the IDs of the reserved peers in ID order.
func (ps *PeerSet) Reserved() []sampling.PeerID {
	ps.mu.RLock()
	var out []sampling.PeerID
	for _, p := range ps.byEd25519Key {
		if p.Reserved {
			out = append(out, p.ID())
		}
	}
	ps.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
