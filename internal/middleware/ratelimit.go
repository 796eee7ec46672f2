// 包 middleware：入口限流
package middleware

import (
	"net/http"
	"os"
	"strconv"

	"golang.org/x/time/rate"

	"ilce-api/internal/logger"
)

// 文档注释：令牌桶限流中间件（每秒）
// 背景：解析请求会触发对限流地理编码服务的调用与客户表写入，峰值时在入口丢弃多余请求，保护下游。
// 约束：不排队，超限直接返回 429；桶容量等于每秒速率。
func RateLimit(qps int) func(http.Handler) http.Handler {
	lim := rate.NewLimiter(rate.Limit(qps), qps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				logger.L().Debug("rate_limited", "path", r.URL.Path, "ip", logger.ClientIP(r))
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Wrap：按 RATE_LIMIT_ENABLED / RATE_LIMIT_QPS（默认 200）决定是否套用限流
func Wrap(next http.Handler) http.Handler {
	if os.Getenv("RATE_LIMIT_ENABLED") != "true" {
		return next
	}
	qps := 200
	if s := os.Getenv("RATE_LIMIT_QPS"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			qps = n
		}
	}
	logger.L().Info("rate_limit_enabled", "qps", qps)
	return RateLimit(qps)(next)
}
