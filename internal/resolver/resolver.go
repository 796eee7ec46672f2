// 包 resolver：区县解析编排（缓存 → 城市校验 → 本地预检 → 正向搜索 → 逆向查询 → 标准化）
package resolver

import (
	"context"
	"encoding/json"
	"time"

	"ilce-api/internal/cache"
	"ilce-api/internal/gazetteer"
	"ilce-api/internal/localmatch"
	"ilce-api/internal/logger"
	"ilce-api/internal/metrics"
	"ilce-api/internal/nominatim"
	"ilce-api/internal/queryplan"
	"ilce-api/internal/textnorm"
)

const (
	DefaultPositiveTTL        = 7 * 24 * time.Hour
	DefaultNegativeTTL        = 10 * time.Minute
	DefaultLocalMinConfidence = 0.9

	keySep = "||"
)

// Geocoder：正向/逆向地理编码契约（nominatim.Client 实现；失败以结果值表达）
type Geocoder interface {
	Search(ctx context.Context, q string) nominatim.SearchResult
	Reverse(ctx context.Context, lat, lon float64) nominatim.ReverseResult
}

// 文档注释：编排器配置
// 约束：Gazetteer/Geocoder/Cache 必填；LocalMinConfidence 为 0 时取默认 0.9，大于 1 时关闭本地预检；TTL 为 0 时取默认值。
type Config struct {
	Gazetteer          *gazetteer.Gazetteer
	Geocoder           Geocoder
	Cache              cache.Cache
	LocalMinConfidence float64
	PositiveTTL        time.Duration
	NegativeTTL        time.Duration
}

type Resolver struct {
	gz       *gazetteer.Gazetteer
	matcher  *localmatch.Matcher
	geo      Geocoder
	cache    cache.Cache
	localMin float64
	posTTL   time.Duration
	negTTL   time.Duration
}

func New(cfg Config) *Resolver {
	r := &Resolver{
		gz:       cfg.Gazetteer,
		matcher:  localmatch.New(cfg.Gazetteer),
		geo:      cfg.Geocoder,
		cache:    cfg.Cache,
		localMin: cfg.LocalMinConfidence,
		posTTL:   cfg.PositiveTTL,
		negTTL:   cfg.NegativeTTL,
	}
	if r.localMin == 0 {
		r.localMin = DefaultLocalMinConfidence
	}
	if r.posTTL <= 0 {
		r.posTTL = DefaultPositiveTTL
	}
	if r.negTTL <= 0 {
		r.negTTL = DefaultNegativeTTL
	}
	return r
}

// CacheKey：城市与地址分别归一化后以分隔符拼接；归一化结果只含 [a-z0-9 ]，分隔符不会与内容混淆
func CacheKey(city, address string) string {
	return textnorm.Normalize(city) + keySep + textnorm.Normalize(address)
}

// 多个整词命中属于歧义，交给网络路径判定
func acceptLocal(out localmatch.Outcome, threshold float64) bool {
	return out.District != "" && out.Method != localmatch.MethodExactMultiFuzzy && out.Confidence >= threshold
}

// 文档注释：解析地址所属区县
// 背景：本地字典高置信命中时不访问网络；否则按查询计划依次正向搜索，首个命中做逆向查询并将区县字段标准化到字典写法。
// 约束：任何失败都返回带方法标签的结果而非错误；负结果缓存 10 分钟、正结果 7 天；缓存命中时方法标签追加 "+cache"。
func (r *Resolver) Resolve(ctx context.Context, address, city string) Result {
	start := time.Now()
	metrics.ResolveRequestsTotal.Inc()
	res := r.resolve(ctx, address, city)
	metrics.ResolveResultsTotal.WithLabelValues(res.Method).Inc()
	metrics.ResolveDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	return res
}

func (r *Resolver) resolve(ctx context.Context, address, city string) Result {
	l := logger.L()
	key := CacheKey(city, address)
	if cached, ok := r.lookup(ctx, key); ok {
		cached.Method += CacheMarker
		l.Debug("resolve_cache_hit", "key", key, "method", cached.Method)
		return cached
	}

	if _, ok := r.gz.Lookup(city); !ok {
		res := Result{Method: MethodNoCityData, Candidates: []Candidate{}}
		l.Info("resolve_no_city", "city", city)
		return r.store(ctx, key, res, r.negTTL)
	}

	if out := r.matcher.Match(city, address); acceptLocal(out, r.localMin) {
		res := Result{District: out.District, Confidence: out.Confidence, Method: out.Method, Candidates: out.Candidates}
		l.Debug("resolve_local_hit", "city", city, "district", out.District, "conf", out.Confidence, "method", out.Method)
		return r.store(ctx, key, res, r.posTTL)
	}

	queries := queryplan.Plan(address, city)
	var (
		hit       *nominatim.Place
		usedQuery string
		status    int
	)
	for _, q := range queries {
		s := r.geo.Search(ctx, q)
		status = s.Status
		if s.OK && len(s.Places) > 0 {
			hit = &s.Places[0]
			usedQuery = q
			break
		}
	}
	if hit == nil {
		res := Result{
			Method:     MethodGeocodeNone,
			Candidates: []Candidate{},
			Detail:     GeocodeMiss{Status: status, TriedQueries: queries},
		}
		l.Info("resolve_geocode_none", "city", city, "tried", len(queries), "status", status)
		return r.store(ctx, key, res, r.negTTL)
	}

	lat, lon := float64(hit.Lat), float64(hit.Lon)
	rev := r.geo.Reverse(ctx, lat, lon)
	if !rev.OK || rev.Address == nil {
		res := Result{
			Method:     MethodReverseFailed,
			Candidates: []Candidate{},
			Detail: ReverseFailure{
				Status:      rev.Status,
				Detail:      rev.Detail,
				UsedQuery:   usedQuery,
				Lat:         lat,
				Lon:         lon,
				DisplayName: hit.DisplayName,
			},
		}
		l.Warn("resolve_reverse_failed", "status", rev.Status, "query", usedQuery)
		return r.store(ctx, key, res, r.negTTL)
	}

	raw := rev.Address.PickDistrict()
	district := r.gz.Standardize(city, raw)
	res := Result{
		Method:     MethodGeocode,
		Candidates: []Candidate{},
		Detail: GeocodeHit{
			UsedQuery:     usedQuery,
			Lat:           lat,
			Lon:           lon,
			DisplayName:   hit.DisplayName,
			ReverseFields: *rev.Address,
		},
	}
	if district == "" {
		l.Info("resolve_reverse_no_district", "query", usedQuery)
		return r.store(ctx, key, res, r.negTTL)
	}
	res.District = district
	res.Confidence = GeocodeConfidence
	res.Candidates = []Candidate{{District: district, Confidence: GeocodeConfidence}}
	l.Debug("resolve_geocode_hit", "city", city, "raw", raw, "district", district)
	return r.store(ctx, key, res, r.posTTL)
}

// CacheSize：缓存中未过期条目数
func (r *Resolver) CacheSize(ctx context.Context) int {
	return r.cache.Size(ctx)
}

func (r *Resolver) lookup(ctx context.Context, key string) (Result, bool) {
	b, ok := r.cache.Get(ctx, key)
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(b, &res); err != nil {
		logger.L().Warn("resolve_cache_decode_error", "key", key, "err", err)
		metrics.CacheMissesTotal.Inc()
		return Result{}, false
	}
	metrics.CacheHitsTotal.Inc()
	return res, true
}

// store：写入缓存并返回同一份结果；编码失败仅记录日志
func (r *Resolver) store(ctx context.Context, key string, res Result, ttl time.Duration) Result {
	b, err := json.Marshal(res)
	if err != nil {
		logger.L().Warn("resolve_cache_encode_error", "key", key, "err", err)
		return res
	}
	r.cache.Set(ctx, key, b, ttl)
	return res
}
