package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

const (
	AlgorithmGzip   = "gzip"
	AlgorithmBrotli = "br"

	DefaultLevel   = 4
	DefaultMinSize = 1024
)

type CompressionMiddleware struct {
	logger            types.Logger
	metrics           types.MetricsManager
	compressionConfig *CompressionConfig
	weight            int
}

type CompressionConfig struct {
	Level        int      `json:"level"`
	MinSize      int      `json:"min_size"`
	AllowedTypes []string `json:"allowed_types"`
}

func NewCompressionMiddleware(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) *CompressionMiddleware {
	item := config.GetConfig().Middlewares.Compression
	compressionConfig := &CompressionConfig{
		Level:        DefaultLevel,
		MinSize:      DefaultMinSize,
		AllowedTypes: []string{"application/json", "text/*"},
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, compressionConfig); err != nil {
			logger.Error("Failed to unmarshal compression middleware config", zap.Error(err))
		}
	}

	if compressionConfig.Level < 1 || compressionConfig.Level > 9 {
		logger.Warn("Invalid compression level, using default", zap.Int("level", compressionConfig.Level))
		compressionConfig.Level = DefaultLevel
	}

	return &CompressionMiddleware{
		logger:            logger,
		metrics:           metrics,
		compressionConfig: compressionConfig,
		weight:            item.Weight,
	}
}

func (c *CompressionMiddleware) Name() string { return "compression" }
func (c *CompressionMiddleware) Weight() int  { return c.weight }

func (c *CompressionMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	algorithm := negotiate(ctx.Request.Header.Peek(fasthttp.HeaderAcceptEncoding))

	next(ctx)

	if algorithm == "" || len(ctx.Response.Header.ContentEncoding()) > 0 {
		return
	}

	body := ctx.Response.Body()
	if len(body) < c.compressionConfig.MinSize || !c.shouldCompress(ctx.Response.Header.ContentType()) {
		return
	}

	compressed, err := c.compress(algorithm, body)
	if err != nil {
		c.logger.Warn("Compression failed", zap.String("algorithm", algorithm), zap.Error(err))
		return
	}

	if len(compressed) >= len(body) {
		return
	}

	ctx.Response.SetBody(compressed)
	ctx.Response.Header.SetContentEncoding(algorithm)
	ctx.Response.Header.Add(fasthttp.HeaderVary, fasthttp.HeaderAcceptEncoding)

	if c.metrics != nil {
		c.metrics.Counter("http_compressed_responses_total", map[string]string{"algorithm": algorithm}).Inc()
	}
}

func (c *CompressionMiddleware) compress(algorithm string, body []byte) ([]byte, error) {
	var buf bytes.Buffer

	var writer io.WriteCloser
	switch algorithm {
	case AlgorithmBrotli:
		writer = brotli.NewWriterLevel(&buf, c.compressionConfig.Level)
	default:
		gz, err := gzip.NewWriterLevel(&buf, c.compressionConfig.Level)
		if err != nil {
			return nil, err
		}
		writer = gz
	}

	if _, err := writer.Write(body); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (c *CompressionMiddleware) shouldCompress(contentType []byte) bool {
	ct := strings.ToLower(string(contentType))
	if semicolon := strings.IndexByte(ct, ';'); semicolon != -1 {
		ct = ct[:semicolon]
	}
	ct = strings.TrimSpace(ct)

	for _, allowed := range c.compressionConfig.AllowedTypes {
		if allowed == ct {
			return true
		}
		if prefix, ok := strings.CutSuffix(allowed, "*"); ok && strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

// negotiate prefers brotli over gzip.
func negotiate(acceptEncoding []byte) string {
	if len(acceptEncoding) == 0 {
		return ""
	}

	var gzipOK bool
	for _, part := range strings.Split(string(acceptEncoding), ",") {
		token := strings.TrimSpace(part)
		name, params, _ := strings.Cut(token, ";")
		if strings.Contains(strings.ReplaceAll(params, " ", ""), "q=0") && !strings.Contains(params, "q=0.") {
			continue
		}
		switch strings.TrimSpace(name) {
		case AlgorithmBrotli:
			return AlgorithmBrotli
		case AlgorithmGzip:
			gzipOK = true
		}
	}

	if gzipOK {
		return AlgorithmGzip
	}
	return ""
}
