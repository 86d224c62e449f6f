package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/nexus/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	c, err := Setup(config.TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestSetupRequiresCertificates(t *testing.T) {
	_, err := Setup(config.TLSConfig{Enabled: true})
	require.Error(t, err)
}

func TestSetupAutoGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	cfg := config.TLSConfig{Enabled: true, Dir: dir, AutoGenerate: true}

	c, err := Setup(cfg)
	require.NoError(t, err)
	require.Len(t, c.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS13), c.MinVersion)

	for _, name := range []string{certName, keyName, caCertName} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	assert.Equal(t, filepath.Join(dir, caCertName), CACertPath(cfg))

	// a second call reuses the existing pair
	before, err := os.ReadFile(filepath.Join(dir, certName))
	require.NoError(t, err)
	_, err = Setup(cfg)
	require.NoError(t, err)
	after, err := os.ReadFile(filepath.Join(dir, certName))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSetupExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath, err := GenerateSelfSigned(CertConfig{Dir: dir, Hosts: []string{"nexus.local", "10.0.0.1"}})
	require.NoError(t, err)

	c, err := Setup(config.TLSConfig{Enabled: true, CertFile: certPath, KeyFile: keyPath, MinVersion: "1.2"})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), c.MinVersion)

	raw, err := os.ReadFile(certPath)
	require.NoError(t, err)
	block, _ := pem.Decode(raw)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, []string{"nexus.local"}, cert.DNSNames)
	require.Len(t, cert.IPAddresses, 1)
	assert.Equal(t, "10.0.0.1", cert.IPAddresses[0].String())
}

func TestSetupBadVersionAndMissingFiles(t *testing.T) {
	_, err := Setup(config.TLSConfig{Enabled: true, Dir: t.TempDir(), MinVersion: "1.0"})
	require.Error(t, err)

	_, err = Setup(config.TLSConfig{Enabled: true, Dir: t.TempDir()})
	require.Error(t, err)
}
