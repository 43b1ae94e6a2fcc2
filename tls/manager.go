package tls

import (
	stdtls "crypto/tls"

	"golang.org/x/crypto/acme/autocert"

	"github.com/saiset-co/sai-offline-cache/types"
)

// BuildConfig turns the declarative TLS section into a *tls.Config for
// the gateway listener: static cert/key pair, or ACME autocert when
// domains are configured.
func BuildConfig(config *types.TLSConfig) (*stdtls.Config, error) {
	if config == nil || !config.Enabled {
		return nil, nil
	}

	if config.AutoCert {
		if len(config.Domains) == 0 {
			return nil, types.Errorf(types.ErrTLSConfigInvalid, "auto_cert requires domains")
		}

		cacheDir := config.CacheDir
		if cacheDir == "" {
			cacheDir = "./data/autocert"
		}

		manager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(config.Domains...),
			Cache:      autocert.DirCache(cacheDir),
			Email:      config.Email,
		}

		return manager.TLSConfig(), nil
	}

	if config.CertFile == "" || config.KeyFile == "" {
		return nil, types.Errorf(types.ErrTLSConfigInvalid, "cert_file and key_file required")
	}

	cert, err := stdtls.LoadX509KeyPair(config.CertFile, config.KeyFile)
	if err != nil {
		return nil, types.WrapError(err, "failed to load key pair")
	}

	return &stdtls.Config{
		Certificates: []stdtls.Certificate{cert},
		MinVersion:   stdtls.VersionTLS12,
	}, nil
}
