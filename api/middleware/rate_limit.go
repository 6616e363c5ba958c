/*
 * @module api/middleware/rate_limit
 * @description 请求限流中间件，按客户端地址限制分析提交频率
 * @architecture 中间件模式 - HTTP请求拦截
 * @documentReference DESIGN.md
 * @stateFlow 提取客户端键 -> 限流检查 -> 写入限流响应头 -> 下一个处理器或 429
 * @rules 限流器异常时放行请求，只记录日志
 * @dependencies net/http, github.com/go-chi/render
 * @refs service/rate_limiter, api/routes.go
 */

package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"siconfi-service/service/rate_limiter"

	"github.com/go-chi/render"
)

// KeyFunc 从请求中提取限流键
type KeyFunc func(r *http.Request) string

// ClientIP 以客户端地址作为限流键，与 chi 的 RealIP 中间件配合使用
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit 创建限流中间件
func RateLimit(limiter rate_limiter.Limiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Allow(r.Context(), key(r))
			if err != nil {
				slog.Warn("限流检查失败，放行请求", "path", r.URL.Path, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt, 10))
			if !res.Allowed {
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, map[string]interface{}{
					"status": 1,
					"msg":    "提交过于频繁，请稍后再试",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
