package server

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-food-admin/types"
)

const RouteParamsKey = "route_params"

type node struct {
	segment   string
	children  map[string]*node
	param     *node
	paramName string
	routes    map[string]*types.RouteDefinition
}

func newNode(segment string) *node {
	return &node{
		segment:  segment,
		children: make(map[string]*node),
		routes:   make(map[string]*types.RouteDefinition),
	}
}

// Match is the outcome of a lookup. Params is nil for static paths.
type Match struct {
	Route    *types.RouteDefinition
	Params   map[string]string
	NotFound bool
}

// Router collects routes through builders and compiles them into a trie on Finalize.
type Router struct {
	mu          sync.RWMutex
	root        *node
	definitions []*types.RouteDefinition
	pending     []*RouteBuilder
	notFound    *types.RouteDefinition
	areaOf      func(path string) types.RouteArea
	finalized   atomic.Bool
}

func NewRouter() *Router {
	return &Router{
		root: newNode(""),
		notFound: &types.RouteDefinition{
			Handler: defaultNotFound,
			Config:  &types.RouteConfig{},
		},
	}
}

// WithAreaResolver decides the area of paths that match no route.
func (r *Router) WithAreaResolver(fn func(path string) types.RouteArea) *Router {
	r.areaOf = fn
	return r
}

func (r *Router) Add(method, path string, handler types.FastHTTPHandler, config *types.RouteConfig) {
	if config == nil {
		config = &types.RouteConfig{}
	}

	def := &types.RouteDefinition{
		Method:  strings.ToUpper(method),
		Path:    normalizePath(path),
		Handler: handler,
		Config:  config,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.root
	for _, seg := range splitPath(def.Path) {
		if name, ok := paramName(seg); ok {
			if current.param == nil {
				current.param = newNode(seg)
				current.param.paramName = name
			}
			current = current.param
			continue
		}

		child, ok := current.children[seg]
		if !ok {
			child = newNode(seg)
			current.children[seg] = child
		}
		current = child
	}

	current.routes[def.Method] = def
	r.definitions = append(r.definitions, def)
}

func (r *Router) Group(prefix string) types.GroupBuilder {
	return &GroupBuilder{
		router: r,
		prefix: normalizePrefix(prefix),
		config: &types.RouteConfig{},
	}
}

func (r *Router) GET(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route(fasthttp.MethodGet, path, handler)
}

func (r *Router) POST(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route(fasthttp.MethodPost, path, handler)
}

func (r *Router) PUT(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route(fasthttp.MethodPut, path, handler)
}

func (r *Router) DELETE(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route(fasthttp.MethodDelete, path, handler)
}

// NotFound replaces the fallback handler. Its area comes from the area resolver
// unless the builder sets one explicitly.
func (r *Router) NotFound(handler types.FastHTTPHandler) types.RouteBuilder {
	rb := &RouteBuilder{
		handler: handler,
		config:  &types.RouteConfig{},
	}

	r.mu.Lock()
	r.notFound = &types.RouteDefinition{Handler: handler, Config: rb.config}
	r.mu.Unlock()

	return rb
}

func (r *Router) Routes() []types.RouteDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]types.RouteDefinition, 0, len(r.definitions))
	for _, def := range r.definitions {
		routes = append(routes, *def)
	}
	return routes
}

func (r *Router) route(method, path string, handler types.FastHTTPHandler) *RouteBuilder {
	rb := &RouteBuilder{
		router:  r,
		method:  method,
		path:    path,
		handler: handler,
		config:  &types.RouteConfig{},
	}

	r.mu.Lock()
	r.pending = append(r.pending, rb)
	r.mu.Unlock()

	return rb
}

// Finalize registers every pending builder. Routes added afterwards go straight in.
func (r *Router) Finalize() error {
	if !r.finalized.CompareAndSwap(false, true) {
		return nil
	}

	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, rb := range pending {
		if rb.handler == nil {
			return types.Errorf(types.ErrRouteFinalizationFailed, "%s %s: %v", rb.method, rb.path, types.ErrHandlerIsNil)
		}
		rb.finalize()
	}

	return nil
}

// Lookup resolves a request. When nothing matches it returns the not-found route
// with a per-request config carrying the resolved area.
func (r *Router) Lookup(method, path string) Match {
	path = normalizePath(path)
	segments := splitPath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	params := make(map[string]string)
	if n := r.root.match(segments, params); n != nil {
		if def, ok := n.routes[method]; ok {
			if len(params) == 0 {
				params = nil
			}
			return Match{Route: def, Params: params}
		}
	}

	config := *r.notFound.Config
	if config.Area == types.AreaNone && r.areaOf != nil {
		config.Area = r.areaOf(path)
	}

	return Match{
		Route: &types.RouteDefinition{
			Method:  method,
			Path:    path,
			Handler: r.notFound.Handler,
			Config:  &config,
		},
		NotFound: true,
	}
}

// match prefers static children and backtracks into the parameter branch.
func (n *node) match(segments []string, params map[string]string) *node {
	if len(segments) == 0 {
		if len(n.routes) == 0 {
			return nil
		}
		return n
	}

	seg := segments[0]
	if child, ok := n.children[seg]; ok {
		if found := child.match(segments[1:], params); found != nil {
			return found
		}
	}

	if n.param != nil && seg != "" {
		if found := n.param.match(segments[1:], params); found != nil {
			params[n.param.paramName] = seg
			return found
		}
	}

	return nil
}

// Param returns a path parameter captured for the current request.
func Param(ctx *fasthttp.RequestCtx, name string) string {
	params, ok := ctx.UserValue(RouteParamsKey).(map[string]string)
	if !ok {
		return ""
	}
	return params[name]
}

func defaultNotFound(ctx *fasthttp.RequestCtx) {
	ctx.Error("Not found", fasthttp.StatusNotFound)
}

func paramName(seg string) (string, bool) {
	if strings.HasPrefix(seg, ":") && len(seg) > 1 {
		return seg[1:], true
	}
	if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") && len(seg) > 2 {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if path[0] != '/' {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

func normalizePrefix(prefix string) string {
	if prefix == "" || prefix == "/" {
		return ""
	}
	return strings.TrimRight(normalizePath(prefix), "/")
}
