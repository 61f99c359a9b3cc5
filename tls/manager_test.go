package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-food-admin/config"
	"github.com/saiset-co/sai-food-admin/logger"
	"github.com/saiset-co/sai-food-admin/types"
)

func writeKeyPair(t *testing.T, notBefore, notAfter time.Time) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "admin.local"},
		DNSNames:     []string{"admin.local"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))

	return certFile, keyFile
}

func managerFor(t *testing.T, tlsConfig *types.TLSConfig) (*CertManager, error) {
	t.Helper()

	cfg := config.NewLoader().Defaults()
	cfg.Server.TLS = tlsConfig
	return NewCertManager(context.Background(), config.NewStaticManager(context.Background(), cfg), logger.NewNopLogger())
}

func TestNewCertManager_InvalidConfig(t *testing.T) {
	cases := map[string]*types.TLSConfig{
		"disabled":        {Enabled: false},
		"missing files":   {Enabled: true, CertFile: "cert.pem"},
		"autocert no dns": {Enabled: true, AutoCert: true},
	}

	for name, tlsConfig := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := managerFor(t, tlsConfig)
			assert.True(t, types.IsError(err, types.ErrTLSConfigInvalid), "%v", err)
		})
	}
}

func TestCertManager_StaticServe(t *testing.T) {
	certFile, keyFile := writeKeyPair(t, time.Now().Add(-time.Hour), time.Now().Add(90*24*time.Hour))

	cm, err := managerFor(t, &types.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)

	_, err = cm.Serve("127.0.0.1:0")
	assert.ErrorIs(t, err, types.ErrServerNotRunning)

	require.NoError(t, cm.Start())
	defer func() { _ = cm.Stop() }()

	ln, err := cm.Serve("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = conn.(*tls.Conn).Handshake()
		_ = conn.Close()
	}()

	conn, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	state := conn.ConnectionState()
	_ = conn.Close()

	require.NotEmpty(t, state.PeerCertificates)
	assert.Equal(t, "admin.local", state.PeerCertificates[0].Subject.CommonName)

	status := cm.GetCertificateStatus()
	require.Contains(t, status, "admin.local")
	assert.Equal(t, StatusValid, status["admin.local"].Status)
	assert.GreaterOrEqual(t, status["admin.local"].DaysUntilExpiry, 89)
}

func TestCertManager_ExpiringSoon(t *testing.T) {
	certFile, keyFile := writeKeyPair(t, time.Now().Add(-time.Hour), time.Now().Add(10*24*time.Hour))

	cm, err := managerFor(t, &types.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	require.NoError(t, cm.Start())
	defer func() { _ = cm.Stop() }()

	assert.Equal(t, StatusExpiringSoon, cm.GetCertificateStatus()["admin.local"].Status)

	cm.now = func() time.Time { return time.Now().Add(11 * 24 * time.Hour) }
	assert.Equal(t, StatusExpired, cm.GetCertificateStatus()["admin.local"].Status)
}

func TestCertManager_RejectsExpiredPair(t *testing.T) {
	certFile, keyFile := writeKeyPair(t, time.Now().Add(-48*time.Hour), time.Now().Add(-time.Hour))

	cm, err := managerFor(t, &types.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)

	err = cm.Start()
	assert.True(t, types.IsError(err, types.ErrTLSConfigInvalid), "%v", err)
	assert.False(t, cm.IsRunning())
}

func TestCertManager_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	cm, err := managerFor(t, &types.TLSConfig{
		Enabled:  true,
		CertFile: filepath.Join(dir, "missing.pem"),
		KeyFile:  filepath.Join(dir, "missing.key"),
	})
	require.NoError(t, err)

	assert.True(t, types.IsError(cm.Start(), types.ErrTLSCertNotFound))
}

func TestCertManager_AutoCert(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")

	cm, err := managerFor(t, &types.TLSConfig{Enabled: true, AutoCert: true, Domains: []string{"admin.example.com"}, CacheDir: dir})
	require.NoError(t, err)
	require.NotNil(t, cm.autocertMgr)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, cm.Start())
	defer func() { _ = cm.Stop() }()

	served := cm.GetTLSConfig()
	assert.Contains(t, served.NextProtos, "acme-tls/1")
	assert.Empty(t, cm.GetCertificateStatus())

	_, err = served.GetCertificate(&tls.ClientHelloInfo{ServerName: "other.example.com"})
	assert.Error(t, err)
}
