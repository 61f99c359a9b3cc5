// Package tls provides the listener for HTTPS, either from a static key pair
// or from certificates obtained through ACME.
package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/saiset-co/sai-food-admin/types"
)

const (
	DefaultCacheDir = "./certs"

	StatusValid        = "valid"
	StatusExpiringSoon = "expiring_soon"
	StatusExpired      = "expired"
	StatusError        = "error"

	expiringWithin = 30 * 24 * time.Hour
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var cipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// CertManager serves certificates for the HTTP server. In static mode the
// key pair is loaded on Start and can be reloaded later; in autocert mode
// certificates are fetched on the first handshake for each domain.
type CertManager struct {
	logger       types.Logger
	config       *types.TLSConfig
	autocertMgr  *autocert.Manager
	mu           sync.RWMutex
	static       *tls.Certificate
	certificates map[string]*tls.Certificate
	state        atomic.Value
	now          func() time.Time
}

func NewCertManager(_ context.Context, config types.ConfigManager, logger types.Logger) (*CertManager, error) {
	tlsConfig := config.GetConfig().Server.TLS
	if tlsConfig == nil || !tlsConfig.Enabled {
		return nil, types.Errorf(types.ErrTLSConfigInvalid, "tls is not enabled")
	}

	cm := &CertManager{
		logger:       logger,
		config:       tlsConfig,
		certificates: make(map[string]*tls.Certificate),
		now:          time.Now,
	}
	cm.state.Store(StateStopped)

	if tlsConfig.AutoCert {
		if err := cm.initializeAutocert(); err != nil {
			return nil, err
		}
	} else if tlsConfig.CertFile == "" || tlsConfig.KeyFile == "" {
		return nil, types.Errorf(types.ErrTLSConfigInvalid, "cert_file and key_file are required without auto_cert")
	}

	return cm, nil
}

func (cm *CertManager) initializeAutocert() error {
	if len(cm.config.Domains) == 0 {
		return types.Errorf(types.ErrTLSConfigInvalid, "auto_cert needs at least one domain")
	}
	for _, domain := range cm.config.Domains {
		if domain == "" {
			return types.Errorf(types.ErrTLSConfigInvalid, "empty domain name")
		}
	}

	cacheDir := cm.config.CacheDir
	if cacheDir == "" {
		cacheDir = DefaultCacheDir
	}
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return types.WrapError(err, "failed to create certificate cache directory")
	}

	cm.autocertMgr = &autocert.Manager{
		Cache:      autocert.DirCache(cacheDir),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cm.config.Domains...),
		Email:      cm.config.Email,
	}
	return nil
}

func (cm *CertManager) Start() error {
	if !cm.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if cm.autocertMgr == nil {
		if err := cm.Reload(); err != nil {
			cm.setState(StateStopped)
			return err
		}
	}

	cm.setState(StateRunning)
	cm.logger.Info("TLS certificate manager started",
		zap.Bool("auto_cert", cm.config.AutoCert),
		zap.Strings("domains", cm.config.Domains))
	return nil
}

func (cm *CertManager) Stop() error {
	if !cm.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}
	defer cm.setState(StateStopped)

	cm.logger.Info("TLS certificate manager stopped")
	return nil
}

func (cm *CertManager) IsRunning() bool {
	return cm.getState() == StateRunning
}

// Reload reads the static key pair again. New handshakes pick it up; open
// connections keep the old certificate.
func (cm *CertManager) Reload() error {
	if cm.autocertMgr != nil {
		return nil
	}

	cert, err := tls.LoadX509KeyPair(cm.config.CertFile, cm.config.KeyFile)
	if err != nil {
		return types.Errorf(types.ErrTLSCertNotFound, "%v", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return types.Errorf(types.ErrTLSConfigInvalid, "parse certificate: %v", err)
	}

	now := cm.now()
	if now.Before(leaf.NotBefore) {
		return types.Errorf(types.ErrTLSConfigInvalid, "certificate not valid before %s", leaf.NotBefore)
	}
	if now.After(leaf.NotAfter) {
		return types.Errorf(types.ErrTLSConfigInvalid, "certificate expired at %s", leaf.NotAfter)
	}
	cert.Leaf = leaf

	cm.mu.Lock()
	cm.static = &cert
	cm.certificates = map[string]*tls.Certificate{certificateName(leaf): &cert}
	cm.mu.Unlock()

	cm.logger.Info("TLS certificate loaded",
		zap.String("subject", leaf.Subject.String()),
		zap.Time("not_after", leaf.NotAfter))
	return nil
}

func (cm *CertManager) Serve(addr string) (net.Listener, error) {
	if !cm.IsRunning() {
		return nil, types.ErrServerNotRunning
	}

	ln, err := tls.Listen("tcp", addr, cm.GetTLSConfig())
	if err != nil {
		return nil, types.Errorf(types.ErrServerStartFailed, "tls listen on %s: %v", addr, err)
	}
	return ln, nil
}

func (cm *CertManager) GetTLSConfig() *tls.Config {
	config := &tls.Config{
		MinVersion:     tls.VersionTLS12,
		CipherSuites:   cipherSuites,
		NextProtos:     []string{"http/1.1"},
		GetCertificate: cm.getCertificate,
	}

	if cm.autocertMgr != nil {
		config.NextProtos = append(config.NextProtos, "acme-tls/1")
	}
	return config
}

func (cm *CertManager) getCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if cm.autocertMgr == nil {
		cm.mu.RLock()
		cert := cm.static
		cm.mu.RUnlock()
		if cert == nil {
			return nil, types.ErrTLSCertNotFound
		}
		return cert, nil
	}

	cert, err := cm.autocertMgr.GetCertificate(hello)
	if err != nil {
		cm.logger.Error("Failed to get certificate",
			zap.String("server_name", hello.ServerName),
			zap.Error(err))
		return nil, err
	}

	if hello.ServerName != "" {
		cm.mu.Lock()
		cm.certificates[hello.ServerName] = cert
		cm.mu.Unlock()
	}
	return cert, nil
}

// GetCertificateStatus reports every certificate served so far, keyed by
// domain.
func (cm *CertManager) GetCertificateStatus() map[string]types.CertificateStatus {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	now := cm.now()
	status := make(map[string]types.CertificateStatus, len(cm.certificates))

	for domain, cert := range cm.certificates {
		leaf := cert.Leaf
		if leaf == nil && len(cert.Certificate) > 0 {
			parsed, err := x509.ParseCertificate(cert.Certificate[0])
			if err != nil {
				status[domain] = types.CertificateStatus{Domain: domain, Status: StatusError, Error: err.Error()}
				continue
			}
			leaf = parsed
		}
		if leaf == nil {
			status[domain] = types.CertificateStatus{Domain: domain, Status: StatusError, Error: "no certificate data"}
			continue
		}

		remaining := leaf.NotAfter.Sub(now)
		s := StatusValid
		switch {
		case remaining <= 0:
			s = StatusExpired
		case remaining <= expiringWithin:
			s = StatusExpiringSoon
		}

		status[domain] = types.CertificateStatus{
			Domain:          domain,
			Status:          s,
			Issuer:          leaf.Issuer.String(),
			Subject:         leaf.Subject.String(),
			NotBefore:       leaf.NotBefore,
			NotAfter:        leaf.NotAfter,
			DaysUntilExpiry: int(remaining.Hours() / 24),
		}
	}

	return status
}

func certificateName(leaf *x509.Certificate) string {
	if len(leaf.DNSNames) > 0 {
		return leaf.DNSNames[0]
	}
	if leaf.Subject.CommonName != "" {
		return leaf.Subject.CommonName
	}
	return "default"
}

func (cm *CertManager) getState() State {
	return cm.state.Load().(State)
}

func (cm *CertManager) setState(newState State) {
	cm.state.Store(newState)
}

func (cm *CertManager) transitionState(from, to State) bool {
	return cm.state.CompareAndSwap(from, to)
}
