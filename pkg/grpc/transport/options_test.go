package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCert writes a self-signed certificate and key into dir
func writeCert(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "flashkv-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600))
	return certFile, keyFile
}

func TestPlaintextOptions(t *testing.T) {
	opts := DefaultOptions()

	serverOpts, err := ServerOptions(opts)
	require.NoError(t, err)
	assert.Len(t, serverOpts, 4)

	dialOpts, err := DialOptions(opts)
	require.NoError(t, err)
	assert.Len(t, dialOpts, 3)
}

func TestServerTLSRequiresKeyPair(t *testing.T) {
	_, err := ServerOptions(Options{TLSEnabled: true})
	assert.ErrorIs(t, err, ErrInvalidTLS)
}

func TestLoadTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir)

	server, err := LoadServerTLSConfig(certFile, keyFile, certFile)
	require.NoError(t, err)
	assert.Len(t, server.Certificates, 1)
	assert.Equal(t, tls.RequireAndVerifyClientCert, server.ClientAuth)
	assert.NotNil(t, server.ClientCAs)

	client, err := LoadClientTLSConfig(certFile, keyFile, certFile, false)
	require.NoError(t, err)
	assert.Len(t, client.Certificates, 1)
	assert.NotNil(t, client.RootCAs)

	opts := Options{TLSEnabled: true, CertFile: certFile, KeyFile: keyFile}
	_, err = ServerOptions(opts)
	assert.NoError(t, err)
	_, err = DialOptions(opts)
	assert.NoError(t, err)
}

func TestLoadTLSConfigErrors(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "bogus.pem")
	require.NoError(t, os.WriteFile(bogus, []byte("not a certificate"), 0600))

	_, err := LoadClientTLSConfig("", "", bogus, false)
	assert.ErrorIs(t, err, ErrInvalidTLS)

	_, err = LoadClientTLSConfig("", "", filepath.Join(dir, "missing.pem"), false)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadServerTLSConfig(bogus, bogus, "")
	assert.Error(t, err)
}
