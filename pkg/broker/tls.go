package broker

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
)

// TLSConfig controls the optional encrypted transport.
//
// InsecureSkipVerify mirrors the station's long-standing default of trusting
// any broker certificate. Whether that stays is a product decision; it is
// exposed here so operators can turn verification on without a rebuild.
type TLSConfig struct {
	Enabled            bool
	CAFile             string
	InsecureSkipVerify bool
}

func tlsConfig(cfg TLSConfig) (*tls.Config, error) {
	t := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(filepath.Clean(cfg.CAFile))
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CAFile)
		}
		t.RootCAs = pool
	}
	return t, nil
}
