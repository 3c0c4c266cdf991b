// Package cert builds and checks the self-signed TLS certificates that carry
// a node's Ed25519 identity.
package cert

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base32"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// DNSNamePrefix starts every encoded public key in a certificate DNS name.
const DNSNamePrefix = "k"

// dnsNameLength is the prefix followed by 52 base32 characters of the key.
const dnsNameLength = 53

var (
	ErrNotEd25519       = errors.New("certificate key is not Ed25519")
	ErrDNSName          = errors.New("certificate DNS name does not encode its key")
	ErrValidityPeriod   = errors.New("certificate outside its validity period")
	ErrSignatureAlgType = errors.New("certificate not signed with Ed25519")
)

var base32Encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// Config contains the parameters needed for certificate generation.
type Config struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	// ValidityPeriod defines how long the certificate remains valid
	ValidityPeriod time.Duration
}

// KeyFromSeed derives a node identity from a 32 byte seed. An all zero seed
// means a fresh random key.
func KeyFromSeed(seed [ed25519.SeedSize]byte) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if seed == [ed25519.SeedSize]byte{} {
		return ed25519.GenerateKey(rand.Reader)
	}
	priv := ed25519.NewKeyFromSeed(seed[:])
	return priv.Public().(ed25519.PublicKey), priv, nil
}

// EncodePubKeyToDNS encodes an Ed25519 public key into a DNS name.
func EncodePubKeyToDNS(pub ed25519.PublicKey) string {
	return DNSNamePrefix + base32Encoding.EncodeToString(pub)
}

// Generate creates a self-signed certificate for both client and server
// authentication, with the encoded public key as its only DNS name.
func Generate(cfg Config) (*tls.Certificate, error) {
	dnsName := EncodePubKeyToDNS(cfg.PublicKey)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: dnsName},
		DNSNames:     []string{dnsName},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(cfg.ValidityPeriod),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		SignatureAlgorithm:    x509.PureEd25519,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, cfg.PublicKey, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  cfg.PrivateKey,
		Leaf:        leaf,
	}, nil
}

// Validator checks peer certificates and extracts their identity.
type Validator struct {
	now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// ValidateCertificate checks the signature algorithm, that the single DNS
// name encodes the certificate key, and the validity period.
func (v *Validator) ValidateCertificate(cert *x509.Certificate) error {
	if cert.SignatureAlgorithm != x509.PureEd25519 {
		return ErrSignatureAlgType
	}
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return ErrNotEd25519
	}
	if len(cert.DNSNames) != 1 {
		return fmt.Errorf("%w: %d DNS names", ErrDNSName, len(cert.DNSNames))
	}
	name := cert.DNSNames[0]
	if len(name) != dnsNameLength || !strings.HasPrefix(name, DNSNamePrefix) || name != EncodePubKeyToDNS(pub) {
		return fmt.Errorf("%w: %s", ErrDNSName, name)
	}

	now := v.now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return ErrValidityPeriod
	}
	return nil
}

func (v *Validator) ExtractPublicKey(cert *x509.Certificate) (ed25519.PublicKey, error) {
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return pub, nil
}
