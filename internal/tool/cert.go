package tool

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/spf13/afero"
)

// EnsureTlsCertificate generates a self-signed key pair unless both files already exist.
// It returns true when new files were written.
func EnsureTlsCertificate(
	fs afero.Fs,
	organization string,
	serverCommonName string,
	serverKeyFilename, serverCertFilename string,
	hostnames []string) (bool, error) {

	existServerKey, err := afero.Exists(fs, serverKeyFilename)
	if err != nil {
		return false, fmt.Errorf("unable to access %s: %w", serverKeyFilename, err)
	}
	existServerCert, err := afero.Exists(fs, serverCertFilename)
	if err != nil {
		return false, fmt.Errorf("unable to access %s: %w", serverCertFilename, err)
	}
	if existServerKey && existServerCert {
		return false, nil
	}

	keyPem, certPem, err := GenerateTlsCertificate(organization, serverCommonName, hostnames)
	if err != nil {
		return false, err
	}
	if err = afero.WriteFile(fs, serverKeyFilename, keyPem, 0600); err != nil {
		return false, fmt.Errorf("unable to save %s: %w", serverKeyFilename, err)
	}
	if err = afero.WriteFile(fs, serverCertFilename, certPem, 0644); err != nil {
		return false, fmt.Errorf("unable to save %s: %w", serverCertFilename, err)
	}
	return true, nil
}

// GenerateTlsCertificate returns a PEM encoded P-256 key and the matching self-signed server certificate,
// valid ten years for the given hostnames and ip addresses.
func GenerateTlsCertificate(organization string, serverCommonName string, hostnames []string) (keyPem []byte, certPem []byte, err error) {
	notBefore := time.Now()
	notAfter := notBefore.AddDate(10, 0, 0)

	serverKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to generate key: %w", err)
	}
	rawKey, err := x509.MarshalECPrivateKey(serverKey)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to marshal key: %w", err)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to generate serial number: %w", err)
	}

	serverTemplate := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   serverCommonName,
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hostnames {
		if ip := net.ParseIP(h); ip != nil {
			serverTemplate.IPAddresses = append(serverTemplate.IPAddresses, ip)
		} else {
			serverTemplate.DNSNames = append(serverTemplate.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &serverTemplate, &serverTemplate, &serverKey.PublicKey, serverKey)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create certificate: %w", err)
	}

	return encodePem("EC PRIVATE KEY", rawKey), encodePem("CERTIFICATE", derBytes), nil
}

func encodePem(blockType string, der []byte) []byte {
	var buffer bytes.Buffer
	// writing to a bytes.Buffer cannot fail
	_ = pem.Encode(&buffer, &pem.Block{Type: blockType, Bytes: der})
	return buffer.Bytes()
}
