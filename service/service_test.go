package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-food-admin/config"
	"github.com/saiset-co/sai-food-admin/logger"
	"github.com/saiset-co/sai-food-admin/sai"
	"github.com/saiset-co/sai-food-admin/types"
)

func containerFor(t *testing.T, mutate func(cfg *types.ServiceConfig)) *sai.Container {
	t.Helper()

	cfg := config.NewLoader().Defaults()
	cfg.Server.HTTP.Host = "127.0.0.1"
	cfg.Server.HTTP.Port = 0
	if mutate != nil {
		mutate(cfg)
	}

	ctx := context.Background()
	c, err := sai.BuildWithLogger(ctx, config.NewStaticManager(ctx, cfg), logger.NewManagerWithLogger(ctx, logger.NewNopLogger()))
	require.NoError(t, err)
	return c
}

func TestNewService_MissingConfig(t *testing.T) {
	_, err := NewService(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrConfigInvalidPath)

	_, err = NewService(context.Background(), filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestService_RunAndStop(t *testing.T) {
	c := containerFor(t, nil)
	s := NewServiceWithContainer(context.Background(), c)

	result := make(chan error, 1)
	go func() { result <- s.Start() }()

	require.Eventually(t, s.IsRunning, 5*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, s.Start(), types.ErrServerAlreadyRunning)

	for _, component := range c.Components() {
		assert.True(t, component.Manager.IsRunning(), component.Name)
	}

	status, body, err := fasthttp.Get(nil, "http://"+c.HTTPServer.Addr()+"/health")
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)

	require.NoError(t, s.Stop())

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop")
	}

	<-s.Done()
	assert.False(t, s.IsRunning())
	assert.False(t, c.HTTPServer.IsRunning())
	assert.False(t, c.Cache.IsRunning())
	assert.ErrorIs(t, s.Stop(), types.ErrServiceIsNotRunning)
}

func TestService_StartupRollback(t *testing.T) {
	dir := t.TempDir()
	c := containerFor(t, func(cfg *types.ServiceConfig) {
		cfg.Server.TLS = &types.TLSConfig{
			Enabled:  true,
			CertFile: filepath.Join(dir, "cert.pem"),
			KeyFile:  filepath.Join(dir, "key.pem"),
		}
	})
	s := NewServiceWithContainer(context.Background(), c)

	err := s.Start()
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrTLSCertNotFound), "%v", err)

	<-s.Done()
	assert.False(t, s.IsRunning())
	assert.False(t, c.Health.IsRunning())
	assert.False(t, c.Sessions.IsRunning())
}
