// 包 api：集中注册 HTTP API 路由以解耦主入口
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"ilce-api/internal/logger"
	"ilce-api/internal/metrics"
	"ilce-api/internal/resolver"
	"ilce-api/internal/store"
)

const (
	msgMissingFields = "customer, address, city zorunlu"
	msgNotFound      = "İlçe bulunamadı, DB güncellenmedi."
	maxBodyBytes     = 1 << 20
)

// Resolver：解析入口（resolver.Resolver 实现）
type Resolver interface {
	Resolve(ctx context.Context, address, city string) resolver.Result
	CacheSize(ctx context.Context) int
}

// CustomerStore：客户表回写与审计（store.Store 实现）
type CustomerStore interface {
	UpdateCustomerDistrict(ctx context.Context, company, customer, district string) (int64, error)
	RecordResolution(ctx context.Context, customer, address, city string, res resolver.Result, rows int64) error
	IncrStats(ctx context.Context, found bool) error
	GetTotals(ctx context.Context) (*store.Totals, error)
}

// flexString：客户号在上游可能以数字或字符串提交，统一转为字符串
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type resolveRequest struct {
	Customer flexString `json:"customer"`
	Address  string     `json:"address"`
	City     string     `json:"city"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// 文档注释：构建并返回 API 路由
// 背景：独立 ServeMux 便于在主入口挂载到 API_BASE 前缀；st 为 nil 时写库与统计接口返回 503，解析接口照常可用。
// 参数：company 为客户表 COMPANY 过滤值。
func BuildRoutes(rv Resolver, st CustomerStore, company string) *http.ServeMux {
	apiMux := http.NewServeMux()

	apiMux.HandleFunc("POST /resolve-district", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req resolveRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": msgMissingFields})
			return
		}
		customer := strings.TrimSpace(string(req.Customer))
		if customer == "" || strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.City) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": msgMissingFields})
			return
		}
		if st == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "database not configured"})
			return
		}

		res := rv.Resolve(ctx, req.Address, req.City)
		if err := st.IncrStats(ctx, res.Found()); err != nil {
			logger.L().Warn("stats_incr_error", "err", err)
		}
		if !res.Found() {
			metrics.CustomerUpdatesTotal.WithLabelValues("skipped").Inc()
			record(ctx, st, customer, req, res, 0)
			writeJSON(w, http.StatusOK, notFoundBody(res))
			return
		}

		rows, err := st.UpdateCustomerDistrict(ctx, company, customer, res.District)
		if err != nil {
			metrics.CustomerUpdatesTotal.WithLabelValues("error").Inc()
			logger.L().Error("customer_update_error", "customer", customer, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"ok":     false,
				"error":  "DB update failed",
				"detail": err.Error(),
			})
			return
		}
		if rows > 0 {
			metrics.CustomerUpdatesTotal.WithLabelValues("updated").Inc()
		} else {
			metrics.CustomerUpdatesTotal.WithLabelValues("no_rows").Inc()
		}
		record(ctx, st, customer, req, res, rows)
		logger.L().Info("customer_district_updated", "customer", customer, "district", res.District, "method", res.Method, "rows", rows)
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"updated":    rows > 0,
			"rowCount":   rows,
			"customer":   customer,
			"district":   res.District,
			"confidence": res.Confidence,
			"method":     res.Method,
			"meta":       res.Meta(),
		})
	})

	apiMux.HandleFunc("GET /resolve", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		address, city := strings.TrimSpace(q.Get("address")), strings.TrimSpace(q.Get("city"))
		if address == "" || city == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "address, city zorunlu"})
			return
		}
		writeJSON(w, http.StatusOK, rv.Resolve(r.Context(), address, city))
	})

	apiMux.HandleFunc("GET /cache/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"size": rv.CacheSize(r.Context())})
	})

	apiMux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "database not configured"})
			return
		}
		t, err := st.GetTotals(r.Context())
		if err != nil {
			logger.L().Error("stats_totals_error", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "stats unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, t)
	})

	apiMux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	return apiMux
}

// notFoundBody：{ok, updated:false, message} 与解析结果字段合并
func notFoundBody(res resolver.Result) map[string]any {
	body := map[string]any{}
	if b, err := json.Marshal(res); err == nil {
		_ = json.Unmarshal(b, &body)
	}
	body["ok"] = true
	body["updated"] = false
	body["message"] = msgNotFound
	return body
}

// record：审计失败不影响响应
func record(ctx context.Context, st CustomerStore, customer string, req resolveRequest, res resolver.Result, rows int64) {
	if err := st.RecordResolution(ctx, customer, req.Address, req.City, res, rows); err != nil {
		logger.L().Warn("resolution_record_error", "customer", customer, "err", err)
	}
}
