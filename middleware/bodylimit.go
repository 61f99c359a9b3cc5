package middleware

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

const defaultMaxBodySize = 6 << 20

type BodyLimitMiddleware struct {
	logger          types.Logger
	metrics         types.MetricsManager
	bodyLimitConfig *BodyLimitConfig
	weight          int
}

type BodyLimitConfig struct {
	MaxBodySize int64 `json:"max_body_size"`
}

func NewBodyLimitMiddleware(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) *BodyLimitMiddleware {
	item := config.GetConfig().Middlewares.BodyLimit
	bodyLimitConfig := &BodyLimitConfig{MaxBodySize: defaultMaxBodySize}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, bodyLimitConfig); err != nil {
			logger.Error("Failed to unmarshal BodyLimit middleware config", zap.Error(err))
		}
	}

	if bodyLimitConfig.MaxBodySize <= 0 {
		bodyLimitConfig.MaxBodySize = defaultMaxBodySize
	}

	return &BodyLimitMiddleware{
		logger:          logger,
		metrics:         metrics,
		bodyLimitConfig: bodyLimitConfig,
		weight:          item.Weight,
	}
}

func (bl *BodyLimitMiddleware) Name() string { return "body-limit" }
func (bl *BodyLimitMiddleware) Weight() int  { return bl.weight }

func (bl *BodyLimitMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	if ctx.IsGet() || ctx.IsHead() || ctx.IsOptions() {
		next(ctx)
		return
	}

	size := int64(ctx.Request.Header.ContentLength())
	if size <= 0 {
		size = int64(len(ctx.PostBody()))
	}

	if size > bl.bodyLimitConfig.MaxBodySize {
		bl.logger.Warn("Request body rejected",
			zap.ByteString("path", ctx.Path()),
			zap.Int64("size", size),
			zap.Int64("limit", bl.bodyLimitConfig.MaxBodySize))

		if bl.metrics != nil {
			bl.metrics.Counter("http_body_rejected_total", nil).Inc()
		}

		ctx.SetConnectionClose()
		utils.CreateBodyTooLargeResponse(ctx)
		return
	}

	next(ctx)
}
