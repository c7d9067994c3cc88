package tlsca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestCA(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test root ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestParseAlgorithm(t *testing.T) {
	assert.Equal(t, AlgorithmRSA3072, ParseAlgorithm("rsa3072"))
	assert.Equal(t, AlgorithmEd25519, ParseAlgorithm("ed25519"))
	assert.Equal(t, AlgorithmECDSAP256, ParseAlgorithm("ecdsa-p256"))
	assert.Equal(t, AlgorithmECDSAP384, ParseAlgorithm("ecdsa-p384"))
	assert.Equal(t, DefaultAlgorithm, ParseAlgorithm(""))
	assert.Equal(t, DefaultAlgorithm, ParseAlgorithm("bogus"))
}

func TestLoadCAAndMintLeaf(t *testing.T) {
	certPEM, keyPEM := generateTestCA(t)

	ca, err := LoadCA(certPEM, keyPEM, AlgorithmECDSAP256)
	require.NoError(t, err)

	leaf, err := ca.MintLeaf("app.example.com")
	require.NoError(t, err)
	require.Len(t, leaf.Certificate, 2)

	parsed, err := x509.ParseCertificate(leaf.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", parsed.Subject.CommonName)
	assert.Contains(t, parsed.DNSNames, "app.example.com")
	assert.True(t, parsed.NotAfter.After(time.Now().Add(360*24*time.Hour)))

	roots := x509.NewCertPool()
	caCert, err := x509.ParseCertificate(leaf.Certificate[1])
	require.NoError(t, err)
	roots.AddCert(caCert)
	_, err = parsed.Verify(x509.VerifyOptions{Roots: roots, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}})
	assert.NoError(t, err)
}

func TestMintLeafAllAlgorithms(t *testing.T) {
	certPEM, keyPEM := generateTestCA(t)

	for _, alg := range []Algorithm{AlgorithmRSA3072, AlgorithmEd25519, AlgorithmECDSAP256, AlgorithmECDSAP384} {
		alg := alg
		t.Run(string(alg), func(t *testing.T) {
			ca, err := LoadCA(certPEM, keyPEM, alg)
			require.NoError(t, err)

			leaf, err := ca.MintLeaf("svc.example.com")
			require.NoError(t, err)
			assert.NotNil(t, leaf.PrivateKey)
		})
	}
}

func TestLoadCAInvalidPEM(t *testing.T) {
	_, err := LoadCA([]byte("not pem"), []byte("not pem"), DefaultAlgorithm)
	assert.Error(t, err)

	certPEM, keyPEM := generateTestCA(t)
	_, err = LoadCA(certPEM, []byte("not pem"), DefaultAlgorithm)
	assert.Error(t, err)
	_, err = LoadCA([]byte("not pem"), keyPEM, DefaultAlgorithm)
	assert.Error(t, err)
}
