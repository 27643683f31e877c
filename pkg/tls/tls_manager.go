package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/antibyte/stuck/pkg/configuration"
	"github.com/antibyte/stuck/pkg/logger"

	"golang.org/x/crypto/acme/autocert"
)

const shutdownTimeout = 5 * time.Second

// Settings holds the [TLS] section.
type Settings struct {
	EnableTLS          bool
	EnableLetsEncrypt  bool
	Domain             string
	LetsEncryptEmail   string
	CertCacheDir       string
	ForceHTTPSRedirect bool
	CertFile           string
	KeyFile            string
	HTTPSAddress       string
}

// Manager decides how the playground is exposed: plain HTTP, HTTPS with
// certificates from disk, or HTTPS with Let's Encrypt.
type Manager struct {
	settings    Settings
	autocertMgr *autocert.Manager
	tlsConfig   *tls.Config
}

// LoadSettings reads the [TLS] section of the global configuration.
func LoadSettings() Settings {
	return Settings{
		EnableTLS:          configuration.GetBool("TLS", "enable_tls", false),
		EnableLetsEncrypt:  configuration.GetBool("TLS", "enable_letsencrypt", false),
		Domain:             configuration.GetString("TLS", "domain", ""),
		LetsEncryptEmail:   configuration.GetString("TLS", "letsencrypt_email", ""),
		CertCacheDir:       configuration.GetString("TLS", "cert_cache_dir", "./certs"),
		ForceHTTPSRedirect: configuration.GetBool("TLS", "force_https_redirect", false),
		CertFile:           configuration.GetString("TLS", "cert_file", "./certs/server.crt"),
		KeyFile:            configuration.GetString("TLS", "key_file", "./certs/server.key"),
		HTTPSAddress:       configuration.GetString("TLS", "https_address", ":8443"),
	}
}

// NewManager builds a manager from the global configuration.
func NewManager() (*Manager, error) {
	return NewManagerWithSettings(LoadSettings())
}

// NewManagerWithSettings validates s and prepares certificates when TLS is on.
func NewManagerWithSettings(s Settings) (*Manager, error) {
	m := &Manager{settings: s}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("TLS configuration validation failed: %w", err)
	}

	if s.EnableTLS {
		if err := m.initialize(); err != nil {
			return nil, fmt.Errorf("TLS initialization failed: %w", err)
		}
	}
	return m, nil
}

func (m *Manager) validate() error {
	if !m.settings.EnableTLS {
		return nil
	}
	if m.settings.EnableLetsEncrypt {
		if strings.TrimSpace(m.settings.Domain) == "" {
			return errors.New("domain is required when Let's Encrypt is enabled")
		}
		if strings.TrimSpace(m.settings.LetsEncryptEmail) == "" {
			return errors.New("letsencrypt_email is required when Let's Encrypt is enabled")
		}
		if strings.Contains(m.settings.Domain, "example.com") {
			logger.SecurityWarn("Using example domain %s", m.settings.Domain)
		}
	}
	if strings.TrimSpace(m.settings.HTTPSAddress) == "" {
		return errors.New("https_address is required when TLS is enabled")
	}
	return nil
}

func (m *Manager) initialize() error {
	if m.settings.EnableLetsEncrypt {
		return m.initializeLetsEncrypt()
	}
	return m.initializeManual()
}

func (m *Manager) initializeLetsEncrypt() error {
	logger.Info(logger.AreaSecurity, "Initializing Let's Encrypt for domain: %s", m.settings.Domain)

	if err := os.MkdirAll(m.settings.CertCacheDir, 0700); err != nil {
		return fmt.Errorf("failed to create certificate cache directory: %w", err)
	}

	domain := m.settings.Domain
	m.autocertMgr = &autocert.Manager{
		Cache:      autocert.DirCache(m.settings.CertCacheDir),
		Prompt:     autocert.AcceptTOS,
		Email:      m.settings.LetsEncryptEmail,
		HostPolicy: autocert.HostWhitelist(domain, "www."+domain),
	}

	m.tlsConfig = &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			if hello.ServerName == "" {
				// autocert refuses handshakes without SNI
				hello.ServerName = domain
			}
			cert, err := m.autocertMgr.GetCertificate(hello)
			if err != nil {
				logger.SecurityWarn("Failed to get certificate for %s: %v", hello.ServerName, err)
				return nil, err
			}
			return cert, nil
		},
		NextProtos: []string{"h2", "http/1.1", "acme-tls/1"},
		MinVersion: tls.VersionTLS12,
	}
	return nil
}

func (m *Manager) initializeManual() error {
	logger.Info(logger.AreaSecurity, "Loading TLS certificate %s with key %s", m.settings.CertFile, m.settings.KeyFile)

	cert, err := tls.LoadX509KeyPair(m.settings.CertFile, m.settings.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}
	m.tlsConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}
	return nil
}

// IsEnabled reports whether an HTTPS listener is served.
func (m *Manager) IsEnabled() bool {
	return m.settings.EnableTLS
}

// TLSConfig returns nil when TLS is disabled.
func (m *Manager) TLSConfig() *tls.Config {
	if !m.settings.EnableTLS {
		return nil
	}
	return m.tlsConfig
}

// HTTPHandler wraps app for the plain HTTP listener. With TLS on it answers
// ACME challenges and optionally redirects everything else to HTTPS.
func (m *Manager) HTTPHandler(app http.Handler) http.Handler {
	if !m.settings.EnableTLS {
		return app
	}
	h := app
	if m.settings.ForceHTTPSRedirect {
		h = http.HandlerFunc(m.redirect)
	}
	if m.autocertMgr != nil {
		h = m.autocertMgr.HTTPHandler(h)
	}
	return h
}

func (m *Manager) redirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, m.httpsURL(r.Host, r.RequestURI), http.StatusMovedPermanently)
}

func (m *Manager) httpsURL(host, requestURI string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	_, port, err := net.SplitHostPort(m.settings.HTTPSAddress)
	if err != nil || port == "" || port == "443" {
		return "https://" + host + requestURI
	}
	return "https://" + net.JoinHostPort(host, port) + requestURI
}

// Serve runs the HTTP listener on httpAddr and, when TLS is enabled, the
// HTTPS listener as well. It returns after ctx is done and both servers have
// shut down, or as soon as one of them fails.
func (m *Manager) Serve(ctx context.Context, httpAddr string, app http.Handler) error {
	servers := []*http.Server{{
		Addr:              httpAddr,
		Handler:           m.HTTPHandler(app),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if m.settings.EnableTLS {
		servers = append(servers, &http.Server{
			Addr:              m.settings.HTTPSAddress,
			Handler:           app,
			TLSConfig:         m.tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	errc := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			if srv.TLSConfig != nil {
				logger.Info(logger.AreaSecurity, "HTTPS listening on %s", srv.Addr)
				errc <- srv.ListenAndServeTLS("", "")
				return
			}
			logger.Info(logger.AreaTerminal, "HTTP listening on %s", srv.Addr)
			errc <- srv.ListenAndServe()
		}(srv)
	}

	var firstErr error
	select {
	case err := <-errc:
		firstErr = err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil && !errors.Is(firstErr, http.ErrServerClosed) {
		return firstErr
	}
	return nil
}
