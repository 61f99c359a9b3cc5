package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-food-admin/logger"
	"github.com/saiset-co/sai-food-admin/types"
)

func newTestClient(t *testing.T, baseURL string, mutate ...func(*types.APIConfig)) *HTTPClient {
	t.Helper()
	config := &types.APIConfig{BaseURL: baseURL, Timeout: 2 * time.Second}
	for _, m := range mutate {
		m(config)
	}
	c := New(context.Background(), config, logger.NewNopLogger(), nil)
	require.NoError(t, c.Start())
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

func TestDo_JSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/user/signin", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		assert.Empty(t, r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"email":"a@b.co","password":"Secret!12"}`, string(body))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/")
	resp, err := c.Do(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/api/user/signin",
		JSON:   map[string]string{"email": "a@b.co", "password": "Secret!12"},
		Token:  "ignored-without-forwarding",
	})
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.JSONEq(t, `{"status":"success"}`, string(resp.Body))
}

func TestDo_ForwardsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, func(cfg *types.APIConfig) { cfg.ForwardToken = true })
	resp, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/api/foods", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestDo_NonSuccessIsAResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Name required"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	resp, err := c.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/api/food"})
	require.NoError(t, err)
	assert.False(t, resp.IsSuccess())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDo_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	c := newTestClient(t, url)
	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/api/foods"})
	assert.ErrorIs(t, err, types.ErrClientRequestFailed)
}

func TestDo_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := newTestClient(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: "/api/foods"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_Multipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "Pizza", r.FormValue("food_name"))
		assert.Equal(t, "12.5", r.FormValue("food_price"))

		file, header, err := r.FormFile("food_image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "pizza.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		assert.Equal(t, []byte("png-bytes"), data)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	form := (&MultipartForm{}).
		AddField("food_name", "Pizza").
		AddField("food_price", "12.5").
		AddFile(FormFile{Field: "food_image", Filename: "pizza.png", ContentType: "image/png", Data: []byte("png-bytes")})

	c := newTestClient(t, server.URL)
	resp, err := c.Do(context.Background(), &Request{Method: http.MethodPut, Path: "/api/food/1", Form: form})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDo_RetriesOnlyWhenConfigured(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	resp, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/api/foods"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.EqualValues(t, 1, calls.Load())

	retrying := newTestClient(t, server.URL, func(cfg *types.APIConfig) { cfg.Retries = 1 })
	calls.Store(0)
	resp, err = retrying.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/api/foods"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, calls.Load())
}

func TestDo_CircuitBreakerOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, func(cfg *types.APIConfig) {
		cfg.CircuitBreaker = &types.CircuitBreakerConfig{Enabled: true, FailureThreshold: 2, RecoveryTimeout: time.Hour, HalfOpenRequests: 1}
	})

	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/api/foods"})
		require.NoError(t, err)
	}

	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/api/foods"})
	assert.ErrorIs(t, err, types.ErrCircuitBreakerOpen)
	assert.Equal(t, BreakerOpen, c.Breaker().State())
}

func TestDo_StoppedClient(t *testing.T) {
	c := New(context.Background(), &types.APIConfig{BaseURL: "http://localhost"}, logger.NewNopLogger(), nil)
	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/"})
	assert.ErrorIs(t, err, types.ErrClientIsStopped)
}
