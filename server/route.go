package server

import (
	"time"

	"github.com/saiset-co/sai-food-admin/types"
)

type RouteBuilder struct {
	router  *Router
	method  string
	path    string
	handler types.FastHTTPHandler
	config  *types.RouteConfig
}

func (rb *RouteBuilder) WithArea(area types.RouteArea) types.RouteBuilder {
	rb.config.Area = area
	return rb
}

func (rb *RouteBuilder) WithMiddlewares(names ...string) types.RouteBuilder {
	rb.config.Middlewares = append(rb.config.Middlewares, names...)
	return rb
}

func (rb *RouteBuilder) WithoutMiddlewares(names ...string) types.RouteBuilder {
	rb.config.DisabledMiddlewares = append(rb.config.DisabledMiddlewares, names...)
	return rb
}

func (rb *RouteBuilder) WithTimeout(duration time.Duration) types.RouteBuilder {
	rb.config.Timeout = duration
	return rb
}

func (rb *RouteBuilder) finalize() {
	config := &types.RouteConfig{
		Area:    rb.config.Area,
		Timeout: rb.config.Timeout,
	}

	if len(rb.config.Middlewares) > 0 {
		config.Middlewares = append([]string(nil), rb.config.Middlewares...)
	}
	if len(rb.config.DisabledMiddlewares) > 0 {
		config.DisabledMiddlewares = append([]string(nil), rb.config.DisabledMiddlewares...)
	}

	rb.router.Add(rb.method, rb.path, rb.handler, config)
}

// GroupBuilder shares a prefix and route settings. Settings apply to routes
// registered after they are set.
type GroupBuilder struct {
	router *Router
	prefix string
	config *types.RouteConfig
}

func (gb *GroupBuilder) WithArea(area types.RouteArea) types.GroupBuilder {
	gb.config.Area = area
	return gb
}

func (gb *GroupBuilder) WithMiddlewares(names ...string) types.GroupBuilder {
	gb.config.Middlewares = append(gb.config.Middlewares, names...)
	return gb
}

func (gb *GroupBuilder) WithoutMiddlewares(names ...string) types.GroupBuilder {
	gb.config.DisabledMiddlewares = append(gb.config.DisabledMiddlewares, names...)
	return gb
}

func (gb *GroupBuilder) WithTimeout(duration time.Duration) types.GroupBuilder {
	gb.config.Timeout = duration
	return gb
}

func (gb *GroupBuilder) Route(method, path string, handler types.FastHTTPHandler) types.RouteBuilder {
	rb := gb.router.route(method, gb.prefix+normalizePath(path), handler)

	rb.config.Area = gb.config.Area
	rb.config.Timeout = gb.config.Timeout
	rb.config.Middlewares = append(rb.config.Middlewares, gb.config.Middlewares...)
	rb.config.DisabledMiddlewares = append(rb.config.DisabledMiddlewares, gb.config.DisabledMiddlewares...)

	return rb
}

func (gb *GroupBuilder) GET(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.Route("GET", path, handler)
}

func (gb *GroupBuilder) POST(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.Route("POST", path, handler)
}

func (gb *GroupBuilder) PUT(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.Route("PUT", path, handler)
}

func (gb *GroupBuilder) DELETE(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.Route("DELETE", path, handler)
}

func (gb *GroupBuilder) Group(prefix string) types.GroupBuilder {
	config := *gb.config
	config.Middlewares = append([]string(nil), gb.config.Middlewares...)
	config.DisabledMiddlewares = append([]string(nil), gb.config.DisabledMiddlewares...)

	return &GroupBuilder{
		router: gb.router,
		prefix: gb.prefix + normalizePrefix(prefix),
		config: &config,
	}
}
