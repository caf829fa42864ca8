package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertsFound is returned when PEM data holds no certificate.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM data")

// ClientCAs are the authorities client certificates are verified against.
type ClientCAs struct {
	pool  *x509.CertPool
	count int
}

// LoadClientCAs reads the CA certificates of a PEM file.
func LoadClientCAs(path string) (*ClientCAs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: read client CA file %s: %w", path, err)
	}
	return ParseClientCAs(data)
}

// ParseClientCAs parses every CERTIFICATE block of pemData. Other block
// types are skipped.
func ParseClientCAs(pemData []byte) (*ClientCAs, error) {
	c := &ClientCAs{pool: x509.NewCertPool()}
	for {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("tlsroots: parse client CA: %w", err)
		}
		c.pool.AddCert(cert)
		c.count++
	}
	if c.count == 0 {
		return nil, ErrNoCertsFound
	}
	return c, nil
}

// Count returns the number of authorities.
func (c *ClientCAs) Count() int {
	return c.count
}

// Apply makes cfg verify client certificates when clients present one.
// Clients without a certificate are still accepted.
func (c *ClientCAs) Apply(cfg *tls.Config) {
	cfg.ClientCAs = c.pool
	cfg.ClientAuth = tls.VerifyClientCertIfGiven
}
