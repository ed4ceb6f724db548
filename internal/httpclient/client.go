// Package httpclient builds the outbound HTTP client shared by discovery,
// token exchange, JWKS fetching and FHIR requests.
package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

var ErrInvalidCertificatePEM = errors.New("invalid certificate PEM")

// Config configures the client.
type Config struct {
	// Timeout bounds each request, including reading the body.
	Timeout time.Duration

	// CACertPEM adds trusted roots in PEM form to the system pool.
	CACertPEM string

	// CACertFile is read and used like CACertPEM.
	CACertFile string
}

// New returns a client with a pooled transport. Extra CA certificates are
// appended to the system roots, so public servers keep working.
func New(cfg Config) (*http.Client, error) {
	tr := cleanhttp.DefaultPooledTransport()

	caPEM := cfg.CACertPEM
	if cfg.CACertFile != "" {
		// #nosec G304 -- path comes from the user's own configuration
		data, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}
		caPEM += "\n" + string(data)
	}

	if caPEM != "" {
		certPool, err := x509.SystemCertPool()
		if err != nil || certPool == nil {
			certPool = x509.NewCertPool()
		}
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, ErrInvalidCertificatePEM
		}

		tr.TLSClientConfig = &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}
