// 包 nominatim：OpenStreetMap Nominatim 正向/逆向地理编码客户端
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"ilce-api/internal/logger"
	"ilce-api/internal/metrics"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "ilce-bulucu/1.0"
	ResultLimit      = 3
	ReverseZoom      = 18
	detailMax        = 300
	bodyMax          = 1 << 20
)

// 文档注释：客户端配置
// 背景：公共 Nominatim 要求可辨识的 User-Agent 且限速约 1 次/秒；自建实例可通过 BaseURL 与 RatePerSec 放宽。
// 约束：零值字段使用默认值；RatePerSec<=0 表示不限速。
type Config struct {
	BaseURL      string
	UserAgent    string
	Language     string
	CountryCodes string
	Timeout      time.Duration
	RatePerSec   float64
	HTTPClient   *http.Client
}

type Client struct {
	base      string
	ua        string
	lang      string
	countries string
	timeout   time.Duration
	hc        *http.Client
	limiter   *rate.Limiter
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Language == "" {
		cfg.Language = "tr"
	}
	if cfg.CountryCodes == "" {
		cfg.CountryCodes = "tr"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Client{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		ua:        cfg.UserAgent,
		lang:      cfg.Language,
		countries: cfg.CountryCodes,
		timeout:   cfg.Timeout,
		hc:        cfg.HTTPClient,
		limiter:   lim,
	}
}

// 文档注释：从环境变量构建客户端
// 约束：NOMINATIM_TIMEOUT_MS / NOMINATIM_RATE_PER_SEC 解析失败时回退默认值（8000ms / 1）。
func NewFromEnv() *Client {
	timeout := 8 * time.Second
	if s := os.Getenv("NOMINATIM_TIMEOUT_MS"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			timeout = time.Duration(n) * time.Millisecond
		}
	}
	rps := 1.0
	if s := os.Getenv("NOMINATIM_RATE_PER_SEC"); s != "" {
		if f, e := strconv.ParseFloat(s, 64); e == nil && f >= 0 {
			rps = f
		}
	}
	ua := os.Getenv("NOMINATIM_USER_AGENT")
	if ua == "" {
		ua = DefaultUserAgent
	}
	if contact := os.Getenv("NOMINATIM_CONTACT"); contact != "" {
		ua += " (contact: " + contact + ")"
	}
	c := New(Config{
		BaseURL:      os.Getenv("NOMINATIM_BASE_URL"),
		UserAgent:    ua,
		Language:     os.Getenv("NOMINATIM_LANG"),
		CountryCodes: os.Getenv("NOMINATIM_COUNTRY_CODES"),
		Timeout:      timeout,
		RatePerSec:   rps,
	})
	logger.L().Debug("nominatim_env", "base", c.base, "timeout_ms", timeout.Milliseconds(), "rate_per_sec", rps)
	return c
}

// 文档注释：正向搜索
// 背景：固定请求形态（jsonv2、地址明细、最多 3 条、国家限定、去重）；失败不抛出，由编排器继续尝试下一条查询。
// 返回：非 2xx、响应体无法解析、超时或传输错误均返回 OK=false 与截断的诊断信息。
func (c *Client) Search(ctx context.Context, q string) SearchResult {
	v := url.Values{}
	v.Set("q", q)
	v.Set("format", "jsonv2")
	v.Set("addressdetails", "1")
	v.Set("limit", strconv.Itoa(ResultLimit))
	v.Set("countrycodes", c.countries)
	v.Set("dedupe", "1")
	status, body, err := c.get(ctx, "search", "/search?"+v.Encode())
	if err != nil {
		return SearchResult{Status: status, Places: []Place{}, Detail: truncate(err.Error())}
	}
	var places []Place
	if err := json.Unmarshal(body, &places); err != nil {
		c.fail("search", "decode", status, err)
		return SearchResult{Status: status, Places: []Place{}, Detail: truncate(string(body))}
	}
	if len(places) > ResultLimit {
		places = places[:ResultLimit]
	}
	if places == nil {
		places = []Place{}
	}
	metrics.NominatimSuccessTotal.WithLabelValues("search").Inc()
	logger.L().Debug("nominatim_search_ok", "q", q, "status", status, "hits", len(places))
	return SearchResult{OK: true, Status: status, Places: places}
}

// 文档注释：逆向查询
// 背景：zoom=18（建筑/街区粒度），以便地址明细中带出区县级字段。
func (c *Client) Reverse(ctx context.Context, lat, lon float64) ReverseResult {
	v := url.Values{}
	v.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	v.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	v.Set("format", "jsonv2")
	v.Set("addressdetails", "1")
	v.Set("zoom", strconv.Itoa(ReverseZoom))
	status, body, err := c.get(ctx, "reverse", "/reverse?"+v.Encode())
	if err != nil {
		return ReverseResult{Status: status, Detail: truncate(err.Error())}
	}
	var rb reverseBody
	if err := json.Unmarshal(body, &rb); err != nil {
		c.fail("reverse", "decode", status, err)
		return ReverseResult{Status: status, Detail: truncate(string(body))}
	}
	metrics.NominatimSuccessTotal.WithLabelValues("reverse").Inc()
	logger.L().Debug("nominatim_reverse_ok", "lat", lat, "lon", lon, "status", status, "has_address", rb.Address != nil)
	return ReverseResult{OK: true, Status: status, Address: rb.Address, DisplayName: rb.DisplayName, Detail: truncate(rb.Error)}
}

// get：限速等待 + 单次超时 + 读取响应体；非 2xx 以响应体作为错误文本
func (c *Client) get(ctx context.Context, op, path string) (int, []byte, error) {
	metrics.NominatimRequestsTotal.WithLabelValues(op).Inc()
	t0 := time.Now()
	defer func() {
		metrics.NominatimDurationMs.WithLabelValues(op).Observe(float64(time.Since(t0).Milliseconds()))
	}()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		c.fail(op, "rate_wait", 0, err)
		return 0, nil, fmt.Errorf("rate wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		c.fail(op, "request", 0, err)
		return 0, nil, err
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept-Language", c.lang)
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		c.fail(op, "http", 0, err)
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, bodyMax))
	if err != nil {
		c.fail(op, "read", resp.StatusCode, err)
		return resp.StatusCode, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.fail(op, "status", resp.StatusCode, nil)
		return resp.StatusCode, nil, fmt.Errorf("%s", body)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) fail(op, stage string, status int, err error) {
	metrics.NominatimFailTotal.WithLabelValues(op).Inc()
	logger.L().Warn("nominatim_"+op+"_fail", "stage", stage, "status", status, "err", err)
}

// 截断诊断信息，避免在结果与缓存中携带整页错误内容
func truncate(s string) string {
	if len(s) <= detailMax {
		return s
	}
	s = s[:detailMax]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
