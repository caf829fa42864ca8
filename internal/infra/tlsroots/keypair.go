package tlsroots

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"
)

// ErrNoKeyPair is returned when neither PEM data nor files were given.
var ErrNoKeyPair = errors.New("tlsroots: no certificate or key configured")

// Material locates a certificate and its private key. PEM data takes
// precedence over files.
type Material struct {
	CertPEM  string
	KeyPEM   string
	CertFile string
	KeyFile  string
}

// FromFiles reports whether the material is read from files.
func (m Material) FromFiles() bool {
	return m.CertPEM == "" && m.KeyPEM == "" && m.CertFile != "" && m.KeyFile != ""
}

// Empty reports whether no material was configured.
func (m Material) Empty() bool {
	return m.CertPEM == "" && m.KeyPEM == "" && m.CertFile == "" && m.KeyFile == ""
}

// KeyPair loads the certificate described by m.
func KeyPair(m Material) (tls.Certificate, error) {
	switch {
	case m.CertPEM != "" && m.KeyPEM != "":
		cert, err := tls.X509KeyPair([]byte(m.CertPEM), []byte(m.KeyPEM))
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("tlsroots: parse key pair: %w", err)
		}
		return cert, nil
	case m.FromFiles():
		cert, err := tls.LoadX509KeyPair(m.CertFile, m.KeyFile)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("tlsroots: load key pair: %w", err)
		}
		return cert, nil
	default:
		return tls.Certificate{}, ErrNoKeyPair
	}
}

// SelfSigned generates a PEM-encoded ECDSA certificate valid for hosts.
// Hosts may be DNS names or IP literals; localhost and the loopback
// addresses are always included.
func SelfSigned(hosts []string, validFor time.Duration) (certPEM, keyPEM []byte, err error) {
	if validFor <= 0 {
		validFor = 365 * 24 * time.Hour
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("tlsroots: generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("tlsroots: generate serial: %w", err)
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"devserve development certificate"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	seen := make(map[string]bool)
	for _, h := range append([]string{"localhost", "127.0.0.1", "::1"}, hosts...) {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("tlsroots: create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("tlsroots: marshal key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}
