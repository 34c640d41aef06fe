// Package tlsutil provides the TLS configuration for checkpoint store
// connections (Redis, MongoDB).
// 安全加固：TLS 1.2+，仅 AEAD 密码套件。
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Options configures a client TLS connection.
type Options struct {
	Enabled bool `json:"enabled" yaml:"enabled" env:"ENABLED"`
	// CAFile 自定义 CA 证书（PEM），为空时使用系统根证书
	CAFile string `json:"ca_file" yaml:"ca_file" env:"CA_FILE"`
	// ServerName 覆盖证书校验使用的主机名
	ServerName string `json:"server_name" yaml:"server_name" env:"SERVER_NAME"`
	// InsecureSkipVerify 仅用于本地测试
	InsecureSkipVerify bool `json:"insecure_skip_verify" yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
}

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ClientConfig builds the client config for opts. It returns nil when TLS
// is disabled.
func ClientConfig(opts Options) (*tls.Config, error) {
	if !opts.Enabled {
		return nil, nil
	}

	cfg := DefaultTLSConfig()
	cfg.ServerName = opts.ServerName
	cfg.InsecureSkipVerify = opts.InsecureSkipVerify //nolint:gosec // opt-in for local testing

	if opts.CAFile != "" {
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("no certificates found in CA file")
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
