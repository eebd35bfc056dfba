package tool

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureTlsCertificate(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()

	generated, err := EnsureTlsCertificate(fs, "tftmirror", "TFT Mirror Server", "/conf/key.pem", "/conf/cert.pem",
		[]string{"127.0.0.1", "mirror.local"})
	require.NoError(t, err)
	assert.True(t, generated)

	keyPem, err := afero.ReadFile(fs, "/conf/key.pem")
	require.NoError(t, err)
	certPem, err := afero.ReadFile(fs, "/conf/cert.pem")
	require.NoError(t, err)

	_, err = tls.X509KeyPair(certPem, keyPem)
	require.NoError(t, err)

	block, _ := pem.Decode(certPem)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "TFT Mirror Server", cert.Subject.CommonName)
	assert.Equal(t, []string{"mirror.local"}, cert.DNSNames)
	require.Len(t, cert.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", cert.IPAddresses[0].String())

	// existing files are kept
	generated, err = EnsureTlsCertificate(fs, "tftmirror", "TFT Mirror Server", "/conf/key.pem", "/conf/cert.pem", nil)
	require.NoError(t, err)
	assert.False(t, generated)
	again, err := afero.ReadFile(fs, "/conf/cert.pem")
	require.NoError(t, err)
	assert.Equal(t, certPem, again)
}
