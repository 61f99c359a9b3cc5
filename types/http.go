package types

import (
	"time"

	"github.com/valyala/fasthttp"
)

type FastHTTPHandler func(ctx *fasthttp.RequestCtx)

// RouteArea tells the guard which navigation tree a route belongs to.
type RouteArea int

const (
	AreaNone RouteArea = iota
	AreaUnauthenticated
	AreaAuthenticated
)

func (a RouteArea) String() string {
	switch a {
	case AreaUnauthenticated:
		return "unauthenticated"
	case AreaAuthenticated:
		return "authenticated"
	default:
		return "none"
	}
}

type HTTPServer interface {
	LifecycleManager
}

type HTTPRouter interface {
	Add(method, path string, handler FastHTTPHandler, config *RouteConfig)
	Group(prefix string) GroupBuilder
	GET(path string, handler FastHTTPHandler) RouteBuilder
	POST(path string, handler FastHTTPHandler) RouteBuilder
	PUT(path string, handler FastHTTPHandler) RouteBuilder
	DELETE(path string, handler FastHTTPHandler) RouteBuilder
	NotFound(handler FastHTTPHandler) RouteBuilder
	Routes() []RouteDefinition
}

type RouteBuilder interface {
	WithArea(area RouteArea) RouteBuilder
	WithMiddlewares(names ...string) RouteBuilder
	WithoutMiddlewares(names ...string) RouteBuilder
	WithTimeout(duration time.Duration) RouteBuilder
}

type GroupBuilder interface {
	WithArea(area RouteArea) GroupBuilder
	WithMiddlewares(names ...string) GroupBuilder
	WithoutMiddlewares(names ...string) GroupBuilder
	WithTimeout(duration time.Duration) GroupBuilder
	GET(path string, handler FastHTTPHandler) RouteBuilder
	POST(path string, handler FastHTTPHandler) RouteBuilder
	PUT(path string, handler FastHTTPHandler) RouteBuilder
	DELETE(path string, handler FastHTTPHandler) RouteBuilder
	Group(prefix string) GroupBuilder
}

type RouteConfig struct {
	Area                RouteArea
	Middlewares         []string
	DisabledMiddlewares []string
	Timeout             time.Duration
}

type RouteDefinition struct {
	Method  string
	Path    string
	Handler FastHTTPHandler
	Config  *RouteConfig
}
