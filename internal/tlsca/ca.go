// Package tlsca supplies server-side *tls.Config values for inbound SNI
// hostnames, in one of two modes: minting a fresh leaf signed by a locally
// held CA (Mode B), or loading the certificate a Kubernetes Secret already
// carries for that hostname (Mode A). Results are cached by SNI under a
// single reader-writer lock.
package tlsca

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// Algorithm is the leaf key pair algorithm Mode B selects between.
type Algorithm string

const (
	AlgorithmRSA3072   Algorithm = "rsa3072"
	AlgorithmEd25519   Algorithm = "ed25519"
	AlgorithmECDSAP256 Algorithm = "ecdsa-p256"
	AlgorithmECDSAP384 Algorithm = "ecdsa-p384"
)

// DefaultAlgorithm is used when the configuration names no algorithm.
const DefaultAlgorithm = AlgorithmRSA3072

// leafValidity is how long a minted leaf certificate remains valid.
const leafValidity = 365 * 24 * time.Hour

// ParseAlgorithm maps a config string to an Algorithm, defaulting to
// DefaultAlgorithm for an empty or unrecognized value.
func ParseAlgorithm(s string) Algorithm {
	switch Algorithm(s) {
	case AlgorithmEd25519, AlgorithmECDSAP256, AlgorithmECDSAP384, AlgorithmRSA3072:
		return Algorithm(s)
	default:
		return DefaultAlgorithm
	}
}

// CA holds the loaded root certificate and private key used to mint leaf
// certificates in Mode B.
type CA struct {
	cert      *x509.Certificate
	key       crypto.Signer
	algorithm Algorithm
}

// LoadCA parses a PEM certificate and PEM private key into a CA usable for
// leaf minting.
func LoadCA(certPEM, keyPEM []byte, algorithm Algorithm) (*CA, error) {
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, fmt.Errorf("tlsca: no PEM block found in CA certificate")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("tlsca: parsing CA certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("tlsca: no PEM block found in CA key")
	}
	key, err := parsePrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("tlsca: parsing CA key: %w", err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("tlsca: CA key does not implement crypto.Signer")
	}

	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}

	return &CA{cert: cert, key: signer, algorithm: algorithm}, nil
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("tlsca: unrecognized private key encoding")
}

// MintLeaf generates and signs a fresh leaf certificate for host: CN=host,
// SAN=DNSName(host), validity [now, now+365d], using the CA's configured
// key algorithm.
func (ca *CA) MintLeaf(host string) (tls.Certificate, error) {
	leafKey, pub, err := generateKey(ca.algorithm)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tlsca: generating leaf key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tlsca: generating serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkixNameFor(host),
		DNSNames:     []string{host},
		NotBefore:    now,
		NotAfter:     now.Add(leafValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, pub, ca.key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tlsca: signing leaf certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der, ca.cert.Raw},
		PrivateKey:  leafKey,
		Leaf:        template,
	}, nil
}

func pkixNameFor(host string) pkix.Name {
	return pkix.Name{CommonName: host}
}

func generateKey(algorithm Algorithm) (crypto.Signer, crypto.PublicKey, error) {
	switch algorithm {
	case AlgorithmEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, pub, err
	case AlgorithmECDSAP256:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, err
		}
		return priv, &priv.PublicKey, nil
	case AlgorithmECDSAP384:
		priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		if err != nil {
			return nil, nil, err
		}
		return priv, &priv.PublicKey, nil
	default: // AlgorithmRSA3072
		priv, err := rsa.GenerateKey(rand.Reader, 3072)
		if err != nil {
			return nil, nil, err
		}
		return priv, &priv.PublicKey, nil
	}
}
