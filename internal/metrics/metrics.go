package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ResolveRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ilce_resolve_requests_total",
		Help: "Total number of district resolve calls",
	})
	ResolveDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ilce_resolve_duration_ms",
		Help:    "Resolve duration in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 2000, 5000, 10000},
	})
	ResolveResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ilce_resolve_results_total",
		Help: "Resolve results by method tag",
	}, []string{"method"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ilce_cache_hits_total",
		Help: "Total result cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ilce_cache_misses_total",
		Help: "Total result cache misses",
	})
	NominatimRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ilce_nominatim_requests_total",
		Help: "Total Nominatim requests",
	}, []string{"op"})
	NominatimSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ilce_nominatim_success_total",
		Help: "Total Nominatim successes",
	}, []string{"op"})
	NominatimFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ilce_nominatim_fail_total",
		Help: "Total Nominatim failures (status, transport or decode)",
	}, []string{"op"})
	NominatimDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ilce_nominatim_duration_ms",
		Help:    "Nominatim call duration in milliseconds",
		Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
	}, []string{"op"})
	CustomerUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ilce_customer_updates_total",
		Help: "Customer district updates by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(ResolveRequestsTotal)
	prometheus.MustRegister(ResolveDurationMs)
	prometheus.MustRegister(ResolveResultsTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(NominatimRequestsTotal)
	prometheus.MustRegister(NominatimSuccessTotal)
	prometheus.MustRegister(NominatimFailTotal)
	prometheus.MustRegister(NominatimDurationMs)
	prometheus.MustRegister(CustomerUpdatesTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
