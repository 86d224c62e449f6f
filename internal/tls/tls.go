package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loykin/nexus/internal/config"
)

// parseTLSVersion maps a config string to a crypto/tls version constant.
func parseTLSVersion(ver string) (uint16, error) {
	switch ver {
	case "", "default", "1.3", "TLS1.3", "tls1.3":
		return tls.VersionTLS13, nil
	case "1.2", "TLS1.2", "tls1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", ver)
	}
}

// Setup builds the server TLS config. It returns nil when TLS is disabled.
// Explicit cert/key files take priority over Dir.
func Setup(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	minVer, err := parseTLSVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}

	certPath, keyPath := cfg.CertFile, cfg.KeyFile
	if certPath == "" || keyPath == "" {
		if cfg.Dir == "" {
			return nil, errors.New("TLS enabled but no valid certificate configuration found")
		}
		certPath = filepath.Join(cfg.Dir, certName)
		keyPath = filepath.Join(cfg.Dir, keyName)
		if cfg.AutoGenerate && !certificatesExist(certPath, keyPath) {
			if _, _, err := GenerateSelfSigned(CertConfig{Dir: cfg.Dir}); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVer,
	}, nil
}

// CACertPath is where an auto-generated CA copy lives for cfg.
func CACertPath(cfg config.TLSConfig) string {
	if cfg.Dir == "" {
		return ""
	}
	return filepath.Join(cfg.Dir, caCertName)
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}
