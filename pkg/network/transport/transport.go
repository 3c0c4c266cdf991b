// Package transport runs QUIC connections between nodes authenticated by
// their Ed25519 certificates.
package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/katedas/pkg/log"
)

// MaxIdleTimeout is how long a connection may stay idle before it is closed.
const MaxIdleTimeout = 5 * time.Minute

// CertValidator checks peer certificates and extracts the peer identity.
type CertValidator interface {
	ValidateCertificate(cert *x509.Certificate) error
	ExtractPublicKey(cert *x509.Certificate) (ed25519.PublicKey, error)
}

// ConnectionHandler negotiates protocols and takes over new connections.
type ConnectionHandler interface {
	// OnConnection is called once per authenticated connection. An error
	// closes the connection.
	OnConnection(conn *Conn) error
	// Protocols returns the ALPN protocols offered and accepted.
	Protocols() []string
	// ValidateConnection checks the negotiated protocol.
	ValidateConnection(state tls.ConnectionState) error
}

type Config struct {
	TLSCert       *tls.Certificate
	ListenAddr    string
	CertValidator CertValidator
	Handler       ConnectionHandler
}

// Transport manages QUIC connections and their lifecycles.
type Transport struct {
	config   Config
	listener *quic.Listener
	mu       sync.RWMutex
	conns    map[string]*Conn
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewTransport(config Config) (*Transport, error) {
	if config.TLSCert == nil {
		return nil, fmt.Errorf("TLS certificate required")
	}
	if config.CertValidator == nil {
		return nil, fmt.Errorf("certificate validator required")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("connection handler required")
	}
	if err := config.CertValidator.ValidateCertificate(config.TLSCert.Leaf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		config: config,
		conns:  make(map[string]*Conn),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (t *Transport) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  MaxIdleTimeout,
		KeepAlivePeriod: MaxIdleTimeout / 3,
	}
}

func (t *Transport) tlsConfig() *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{*t.config.TLSCert},
		NextProtos:         t.config.Handler.Protocols(),
		ClientAuth:         tls.RequireAnyClientCert,
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyConnection:   t.verifyConnection,
	}
}

// verifyConnection runs on both sides of the handshake.
func (t *Transport) verifyConnection(cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return fmt.Errorf("%w: no peer certificate provided", ErrInvalidCertificate)
	}
	if err := t.config.CertValidator.ValidateCertificate(cs.PeerCertificates[0]); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	if err := t.config.Handler.ValidateConnection(cs); err != nil {
		return fmt.Errorf("connection validation failed: %w", err)
	}
	return nil
}

// Start listens on the configured address and accepts connections in the
// background.
func (t *Transport) Start() error {
	listener, err := quic.ListenAddr(t.config.ListenAddr, t.tlsConfig(), t.quicConfig())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}
	t.listener = listener
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		t.acceptLoop()
	}()
	log.Network.Info().Stringer("addr", listener.Addr()).Msg("transport listening")
	return nil
}

// Addr is the bound listen address.
func (t *Transport) Addr() (net.Addr, error) {
	if t.listener == nil {
		return nil, ErrNotStarted
	}
	return t.listener.Addr(), nil
}

// Stop closes every connection and the listener.
func (t *Transport) Stop() error {
	t.cancel()

	t.mu.Lock()
	for _, conn := range t.conns {
		if err := conn.Close(); err != nil {
			log.Network.Debug().Err(err).Msg("failed to close connection")
		}
	}
	t.conns = make(map[string]*Conn)
	t.mu.Unlock()

	if t.listener == nil {
		return nil
	}
	if err := t.listener.Close(); err != nil {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	<-t.done
	return nil
}

// Connect dials a remote peer.
func (t *Transport) Connect(ctx context.Context, addr string) (*Conn, error) {
	qConn, err := quic.DialAddr(ctx, addr, t.tlsConfig(), t.quicConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDialFailed, err)
	}
	conn, err := t.handleConnection(qConn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnFailed, err)
	}
	return conn, nil
}

func (t *Transport) GetConnection(peerKey ed25519.PublicKey) (*Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conn, ok := t.conns[string(peerKey)]
	return conn, ok
}

func (t *Transport) ListConnections() []*Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conns := make([]*Conn, 0, len(t.conns))
	for _, conn := range t.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (t *Transport) acceptLoop() {
	for {
		qConn, err := t.listener.Accept(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return
			}
			log.Network.Warn().Err(err).Msg("failed to accept connection")
			continue
		}
		go func() {
			if _, err := t.handleConnection(qConn); err != nil {
				log.Network.Warn().Err(err).Stringer("remote", qConn.RemoteAddr()).Msg("rejected connection")
			}
		}()
	}
}

func (t *Transport) handleConnection(qConn quic.Connection) (*Conn, error) {
	certs := qConn.ConnectionState().TLS.PeerCertificates
	if len(certs) == 0 {
		_ = qConn.CloseWithError(0, ErrInvalidCertificate.Error())
		return nil, ErrInvalidCertificate
	}
	peerKey, err := t.config.CertValidator.ExtractPublicKey(certs[0])
	if err != nil {
		_ = qConn.CloseWithError(0, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	conn := t.register(peerKey, qConn)
	if err := t.config.Handler.OnConnection(conn); err != nil {
		t.remove(peerKey, conn)
		_ = qConn.CloseWithError(0, err.Error())
		return nil, err
	}
	return conn, nil
}

// register stores conn, replacing any earlier connection of the same peer.
func (t *Transport) register(peerKey ed25519.PublicKey, qConn quic.Connection) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.conns[string(peerKey)]; ok {
		log.Network.Debug().Str("peer", EncodeKey(peerKey)).Msg("replacing existing connection")
		if err := existing.Close(); err != nil {
			log.Network.Debug().Err(err).Msg("failed to close replaced connection")
		}
	}
	conn := newConn(t.ctx, qConn, peerKey)
	t.conns[string(peerKey)] = conn
	return conn
}

func (t *Transport) remove(peerKey ed25519.PublicKey, conn *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[string(peerKey)] == conn {
		delete(t.conns, string(peerKey))
	}
}

// EncodeKey renders a peer key for logs and peer identifiers.
func EncodeKey(key ed25519.PublicKey) string {
	return fmt.Sprintf("%x", []byte(key))
}
