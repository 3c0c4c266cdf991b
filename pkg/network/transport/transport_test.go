package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/katedas/pkg/network/cert"
	"github.com/eigerco/katedas/pkg/network/mocks"
)

type nopHandler struct{}

func (nopHandler) OnConnection(*Conn) error { return nil }

func (nopHandler) Protocols() []string { return []string{"katedas/1/00000000"} }

func (nopHandler) ValidateConnection(tls.ConnectionState) error { return nil }

type rejectingValidator struct{}

func (rejectingValidator) ValidateCertificate(*x509.Certificate) error { return errors.New("nope") }
func (rejectingValidator) ExtractPublicKey(*x509.Certificate) (ed25519.PublicKey, error) {
	return nil, errors.New("nope")
}

func testCert(t *testing.T) *tls.Certificate {
	t.Helper()
	pub, priv, err := cert.KeyFromSeed([32]byte{3})
	require.NoError(t, err)
	c, err := cert.Generate(cert.Config{PublicKey: pub, PrivateKey: priv, ValidityPeriod: time.Hour})
	require.NoError(t, err)
	return c
}

func TestNewTransportValidatesConfig(t *testing.T) {
	c := testCert(t)
	tests := []struct {
		name   string
		config Config
		errIs  error
	}{
		{name: "missing cert", config: Config{CertValidator: cert.NewValidator(), Handler: nopHandler{}}},
		{name: "missing validator", config: Config{TLSCert: c, Handler: nopHandler{}}},
		{name: "missing handler", config: Config{TLSCert: c, CertValidator: cert.NewValidator()}},
		{name: "own cert rejected", config: Config{TLSCert: c, CertValidator: rejectingValidator{}, Handler: nopHandler{}}, errIs: ErrInvalidCertificate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTransport(tc.config)
			require.Error(t, err)
			if tc.errIs != nil {
				assert.ErrorIs(t, err, tc.errIs)
			}
		})
	}

	tr, err := NewTransport(Config{TLSCert: c, CertValidator: cert.NewValidator(), Handler: nopHandler{}})
	require.NoError(t, err)
	_, err = tr.Addr()
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.NoError(t, tr.Stop())
}

func TestVerifyConnection(t *testing.T) {
	c := testCert(t)
	tr, err := NewTransport(Config{TLSCert: c, CertValidator: cert.NewValidator(), Handler: nopHandler{}})
	require.NoError(t, err)

	assert.ErrorIs(t, tr.verifyConnection(tls.ConnectionState{}), ErrInvalidCertificate)
	assert.NoError(t, tr.verifyConnection(tls.ConnectionState{PeerCertificates: []*x509.Certificate{c.Leaf}}))
}

func TestRegisterReplacesConnection(t *testing.T) {
	tr, err := NewTransport(Config{TLSCert: testCert(t), CertValidator: cert.NewValidator(), Handler: nopHandler{}})
	require.NoError(t, err)
	key, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	first := mocks.NewMockQuicConnection()
	first.On("CloseWithError", quic.ApplicationErrorCode(0), "").Return(nil).Once()
	second := mocks.NewMockQuicConnection()

	a := tr.register(key, first)
	b := tr.register(key, second)
	assert.Error(t, a.Context().Err(), "replaced connection is closed")
	assert.NoError(t, b.Context().Err())

	got, ok := tr.GetConnection(key)
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Len(t, tr.ListConnections(), 1)

	// removing a stale connection keeps the current one
	tr.remove(key, a)
	_, ok = tr.GetConnection(key)
	assert.True(t, ok)
	tr.remove(key, b)
	_, ok = tr.GetConnection(key)
	assert.False(t, ok)
	first.AssertExpectations(t)
}

func TestConnStreams(t *testing.T) {
	qConn := mocks.NewMockQuicConnection()
	stream := mocks.NewMockQuicStream()
	qConn.On("OpenStreamSync", mock.Anything).Return(stream, nil).Once()
	qConn.On("AcceptStream", mock.Anything).Return(nil, errors.New("closed")).Once()
	qConn.On("CloseWithError", quic.ApplicationErrorCode(0), "").Return(nil).Once()

	key, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	conn := newConn(context.Background(), qConn, key)
	assert.Equal(t, key, conn.PeerKey())

	got, err := conn.OpenStream(context.Background())
	require.NoError(t, err)
	assert.Same(t, stream, got)

	_, err = conn.AcceptStream()
	assert.ErrorContains(t, err, "failed to accept QUIC stream")

	require.NoError(t, conn.Close())
	assert.Error(t, conn.Context().Err())
	qConn.AssertExpectations(t)
}
