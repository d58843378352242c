package auth

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig builds a *tls.Config for an HTTPS listener. When clientsCA is
// set, client certificates are required and verified against it (mutual
// TLS); requests without a valid client cert are rejected before the
// handler ever runs (see listener/http.go), matching spec.md §4.5 step 1.
func TLSConfig(certFile, keyFile, clientsCA string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading TLS keypair: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if clientsCA != "" {
		caBytes, err := os.ReadFile(clientsCA)
		if err != nil {
			return nil, fmt.Errorf("reading clients CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("no certificates found in %s", clientsCA)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return cfg, nil
}
