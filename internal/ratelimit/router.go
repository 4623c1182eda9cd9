package ratelimit

import (
	"context"
	"log/slog"
	"strings"

	"VoiceDot/internal/observability/metrics"
)

// Router 按路由名称持有限流参数，并以 identity:route 为键调用后端。
type Router struct {
	limiter Limiter
	backend Backend
	def     Params
	routes  map[string]Params
	logger  *slog.Logger
}

// NewRouter 创建路由限流器。routes 中未出现的路由使用 def。
func NewRouter(limiter Limiter, backend Backend, def Params, routes map[string]Params, opts ...Option) *Router {
	o := collect(opts)
	copied := make(map[string]Params, len(routes))
	for name, p := range routes {
		copied[strings.ToLower(name)] = p
	}
	return &Router{limiter: limiter, backend: backend, def: def, routes: copied, logger: o.logger}
}

// Backend 返回使用中的后端。
func (r *Router) Backend() Backend {
	return r.backend
}

// Params 返回路由的限流参数。
func (r *Router) Params(route string) Params {
	if p, ok := r.routes[strings.ToLower(route)]; ok {
		return p
	}
	return r.def
}

// Allow 判断请求是否放行。后端出错时放行并记录告警。
func (r *Router) Allow(ctx context.Context, identity, route string) bool {
	if r == nil || r.limiter == nil {
		return true
	}
	p := r.Params(route)
	if !p.Enabled() {
		return true
	}
	ok, err := r.limiter.Allow(ctx, Key(identity, route), p)
	switch {
	case err != nil:
		r.logger.Warn("限流后端异常，放行请求",
			slog.String("backend", string(r.backend)),
			slog.String("route", route),
			slog.Any("error", err))
		metrics.ObserveRateLimit(route, string(r.backend), "error")
		return true
	case ok:
		metrics.ObserveRateLimit(route, string(r.backend), "allowed")
	default:
		metrics.ObserveRateLimit(route, string(r.backend), "denied")
	}
	return ok
}

// Key 组合限流键。
func Key(identity, route string) string {
	if identity == "" {
		identity = "anonymous"
	}
	return identity + ":" + route
}
