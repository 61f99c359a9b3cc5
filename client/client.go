package client

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const DefaultTimeout = 15 * time.Second

// Request is one call to the food API. At most one of JSON and Form is set.
type Request struct {
	Method  string
	Path    string
	JSON    interface{}
	Form    *MultipartForm
	Token   string
	Timeout time.Duration
}

type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// HTTPClient talks to the remote food API over fasthttp.
type HTTPClient struct {
	ctx            context.Context
	cancel         context.CancelFunc
	logger         types.Logger
	metrics        types.MetricsManager
	client         *fasthttp.Client
	baseURL        string
	config         *types.APIConfig
	circuitBreaker *CircuitBreaker
	requestTimeout time.Duration
	state          atomic.Value
}

func NewHTTPClient(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (*HTTPClient, error) {
	apiConfig := config.GetConfig().API
	if apiConfig == nil {
		return nil, types.ErrConfigIsNil
	}
	return New(ctx, apiConfig, logger, metrics), nil
}

func New(ctx context.Context, config *types.APIConfig, logger types.Logger, metrics types.MetricsManager) *HTTPClient {
	clientCtx, cancel := context.WithCancel(ctx)

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := &fasthttp.Client{
		Name:            "sai-food-admin",
		ReadTimeout:     timeout,
		WriteTimeout:    timeout,
		MaxConnsPerHost: config.MaxConnsPerHost,
	}

	c := &HTTPClient{
		ctx:            clientCtx,
		cancel:         cancel,
		logger:         logger,
		metrics:        metrics,
		client:         httpClient,
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		config:         config,
		circuitBreaker: NewCircuitBreaker(config.CircuitBreaker, logger, "food-api"),
		requestTimeout: timeout,
	}

	c.state.Store(StateStopped)
	return c
}

func (c *HTTPClient) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	c.setState(StateRunning)
	c.logger.Info("API client started", zap.String("base_url", c.baseURL))
	return nil
}

func (c *HTTPClient) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		c.setState(StateStopped)
		c.cancel()
	}()

	c.client.CloseIdleConnections()
	c.logger.Info("API client stopped")
	return nil
}

func (c *HTTPClient) IsRunning() bool {
	return c.getState() == StateRunning
}

func (c *HTTPClient) Breaker() *CircuitBreaker {
	return c.circuitBreaker
}

// Do sends req and returns any HTTP response, including non-2xx ones.
// An error means no response was obtained. A cancelled ctx returns ctx.Err().
func (c *HTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if !c.IsRunning() {
		return nil, types.ErrClientIsStopped
	}

	body, contentType, err := c.encodeBody(req)
	if err != nil {
		return nil, err
	}

	timeout := c.requestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.Retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 200 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.ctx.Done():
				return nil, types.ErrClientIsStopped
			}
		}

		if !c.circuitBreaker.CanExecute() {
			return nil, types.ErrCircuitBreakerOpen
		}

		start := time.Now()
		resp, err := c.execute(ctx, req, body, contentType, timeout)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		c.recordMetrics(req.Method, statusCode, err, time.Since(start))

		if IsCircuitBreakerFailure(statusCode, err) {
			c.circuitBreaker.RecordFailure()
		} else {
			c.circuitBreaker.RecordSuccess()
		}

		if err == nil && !IsRetryableError(statusCode, nil) {
			return resp, nil
		}

		if err != nil {
			lastErr = types.Errorf(types.ErrClientRequestFailed, "%s %s: %v", req.Method, req.Path, err)
		}

		if attempt == c.config.Retries || !IsRetryableError(statusCode, err) {
			if err == nil {
				return resp, nil
			}
			break
		}

		c.logger.Debug("Retrying API request",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("attempt", attempt+1),
			zap.Int("status_code", statusCode),
			zap.Error(err))
	}

	return nil, lastErr
}

func (c *HTTPClient) execute(ctx context.Context, req *Request, body []byte, contentType string, timeout time.Duration) (*Response, error) {
	type result struct {
		resp *Response
		err  error
	}

	done := make(chan result, 1)

	go func() {
		httpReq := fasthttp.AcquireRequest()
		httpResp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(httpReq)
		defer fasthttp.ReleaseResponse(httpResp)

		httpReq.SetRequestURI(c.baseURL + req.Path)
		httpReq.Header.SetMethod(req.Method)
		httpReq.Header.Set(fasthttp.HeaderAccept, utils.ContentTypeJSON)

		if body != nil {
			httpReq.Header.SetContentType(contentType)
			httpReq.SetBody(body)
		}

		if c.config.ForwardToken && req.Token != "" {
			httpReq.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+req.Token)
		}

		if err := c.client.DoTimeout(httpReq, httpResp, timeout); err != nil {
			done <- result{err: err}
			return
		}

		respBody := make([]byte, len(httpResp.Body()))
		copy(respBody, httpResp.Body())

		done <- result{resp: &Response{StatusCode: httpResp.StatusCode(), Body: respBody}}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, types.ErrClientIsStopped
	}
}

func (c *HTTPClient) encodeBody(req *Request) ([]byte, string, error) {
	switch {
	case req.Form != nil:
		return req.Form.Encode()
	case req.JSON != nil:
		data, err := utils.Marshal(req.JSON)
		if err != nil {
			return nil, "", types.WrapError(err, "failed to marshal request data")
		}
		return data, utils.ContentTypeJSON, nil
	default:
		return nil, "", nil
	}
}

func (c *HTTPClient) recordMetrics(method string, statusCode int, err error, duration time.Duration) {
	if c.metrics == nil {
		return
	}

	status := "error"
	if err == nil {
		status = statusClass(statusCode)
	}

	labels := map[string]string{"method": method, "status": status}
	c.metrics.Counter("api_requests_total", labels).Inc()
	c.metrics.Histogram("api_request_duration_seconds", nil, map[string]string{"method": method}).Observe(duration.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func (c *HTTPClient) getState() State {
	return c.state.Load().(State)
}

func (c *HTTPClient) setState(newState State) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *HTTPClient) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
