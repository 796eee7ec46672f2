package resolver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ilce-api/internal/cache"
	"ilce-api/internal/gazetteer"
	"ilce-api/internal/nominatim"
	"ilce-api/internal/queryplan"
)

type fakeGeo struct {
	search   func(q string) nominatim.SearchResult
	reverse  func(lat, lon float64) nominatim.ReverseResult
	searches []string
	reverses int
}

func (f *fakeGeo) Search(_ context.Context, q string) nominatim.SearchResult {
	f.searches = append(f.searches, q)
	if f.search == nil {
		return nominatim.SearchResult{OK: true, Status: 200}
	}
	return f.search(q)
}

func (f *fakeGeo) Reverse(_ context.Context, lat, lon float64) nominatim.ReverseResult {
	f.reverses++
	if f.reverse == nil {
		return nominatim.ReverseResult{OK: false, Status: 0, Detail: "no reverse"}
	}
	return f.reverse(lat, lon)
}

func (f *fakeGeo) calls() int { return len(f.searches) + f.reverses }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	r   *Resolver
	geo *fakeGeo
	mem *cache.Memory
	clk *clock
}

func newHarness(t *testing.T, localMin float64) *harness {
	t.Helper()
	gz, err := gazetteer.New(map[string][]string{
		"istanbul": {"Kadıköy", "Beşiktaş", "Üsküdar", "Şişli"},
		"izmir":    {"Konak", "Buca"},
	})
	require.NoError(t, err)
	clk := &clock{t: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)}
	mem := cache.NewMemory().WithClock(clk.now)
	geo := &fakeGeo{}
	r := New(Config{Gazetteer: gz, Geocoder: geo, Cache: mem, LocalMinConfidence: localMin})
	return &harness{r: r, geo: geo, mem: mem, clk: clk}
}

func (h *harness) expiresIn(t *testing.T, city, address string) time.Duration {
	t.Helper()
	e, ok := h.mem.Entry(CacheKey(city, address))
	require.True(t, ok, "result should be cached")
	require.False(t, e.ExpiresAt.IsZero())
	return e.ExpiresAt.Sub(h.clk.now())
}

func hitAt(lat, lon float64, name string) func(string) nominatim.SearchResult {
	return func(string) nominatim.SearchResult {
		return nominatim.SearchResult{OK: true, Status: 200, Places: []nominatim.Place{
			{Lat: nominatim.Coord(lat), Lon: nominatim.Coord(lon), DisplayName: name},
		}}
	}
}

func reverseTo(a nominatim.Address) func(float64, float64) nominatim.ReverseResult {
	return func(float64, float64) nominatim.ReverseResult {
		return nominatim.ReverseResult{OK: true, Status: 200, Address: &a, DisplayName: "rev"}
	}
}

func TestResolveUnknownCityCachedBriefly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	first := h.r.Resolve(ctx, "Kızıl Çöl Sk. 3", "Marslı")
	assert.Equal(t, "", first.District)
	assert.Equal(t, 0.0, first.Confidence)
	assert.Equal(t, MethodNoCityData, first.Method)
	assert.Empty(t, first.Candidates)
	assert.Nil(t, first.Detail)
	assert.Equal(t, DefaultNegativeTTL, h.expiresIn(t, "Marslı", "Kızıl Çöl Sk. 3"))

	h.clk.advance(9 * time.Minute)
	second := h.r.Resolve(ctx, "Kızıl Çöl Sk. 3", "Marslı")
	assert.Equal(t, MethodNoCityData+CacheMarker, second.Method)
	assert.True(t, second.FromCache())
	assert.Equal(t, MethodNoCityData, second.BaseMethod())
	assert.Equal(t, "", second.District)
	assert.Equal(t, 0.0, second.Confidence)

	h.clk.advance(time.Minute + time.Second)
	third := h.r.Resolve(ctx, "Kızıl Çöl Sk. 3", "Marslı")
	assert.Equal(t, MethodNoCityData, third.Method)
	assert.Zero(t, h.geo.calls())
}

func TestResolveLocalExactWithoutNetwork(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	res := h.r.Resolve(ctx, "Bağdat Caddesi No:45, Kadıköy", "İstanbul")
	assert.Equal(t, "Kadıköy", res.District)
	assert.Equal(t, 0.98, res.Confidence)
	assert.Equal(t, MethodExactWord, res.Method)
	assert.Zero(t, h.geo.calls())
	assert.Equal(t, DefaultPositiveTTL, h.expiresIn(t, "İstanbul", "Bağdat Caddesi No:45, Kadıköy"))

	again := h.r.Resolve(ctx, "Bağdat Caddesi No:45, Kadıköy", "İstanbul")
	assert.Equal(t, MethodExactWord+CacheMarker, again.Method)
	assert.Equal(t, res.Candidates, again.Candidates)
}

func TestResolveLocalPrecheckDisabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1.1)
	h.geo.search = hitAt(40.98, 29.02, "Bağdat Caddesi, Kadıköy")
	h.geo.reverse = reverseTo(nominatim.Address{County: "Kadıköy", State: "İstanbul"})

	res := h.r.Resolve(ctx, "Bağdat Caddesi No:45, Kadıköy", "İstanbul")
	assert.Equal(t, MethodGeocode, res.Method)
	assert.Equal(t, "Kadıköy", res.District)
	assert.Len(t, h.geo.searches, 1)
}

func TestResolveLowLocalConfidenceFallsThrough(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	h.geo.search = hitAt(40.98, 29.02, "Moda Caddesi, Kadıköy")
	h.geo.reverse = reverseTo(nominatim.Address{CityDistrict: "Kadikoy"})

	res := h.r.Resolve(ctx, "Moda Cd. Kadikoi", "İstanbul")
	assert.Equal(t, MethodGeocode, res.Method)
	assert.Equal(t, "Kadıköy", res.District)
	assert.Equal(t, GeocodeConfidence, res.Confidence)
	assert.NotEmpty(t, h.geo.searches)
}

func TestResolveAmbiguousLocalReachesGeocoder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	h.geo.search = hitAt(41.02, 29.03, "Üsküdar, İstanbul")
	h.geo.reverse = reverseTo(nominatim.Address{County: "Üsküdar", State: "İstanbul"})
	addr := "Kadıköy Cad. No:3 Üsküdar"

	res := h.r.Resolve(ctx, addr, "İstanbul")
	assert.Equal(t, MethodGeocode, res.Method)
	assert.Equal(t, "Üsküdar", res.District)
	assert.NotEmpty(t, h.geo.searches)
	assert.Equal(t, 1, h.geo.reverses)
}

func TestResolveAmbiguousLocalGeocodeMissIsNegative(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	addr := "Kadıköy Cad. No:3 Üsküdar"

	res := h.r.Resolve(ctx, addr, "İstanbul")
	assert.Equal(t, MethodGeocodeNone, res.Method)
	assert.Equal(t, "", res.District)
	assert.Equal(t, DefaultNegativeTTL, h.expiresIn(t, "İstanbul", addr))
}

func TestNewLocalMinConfidenceDefaults(t *testing.T) {
	gz, err := gazetteer.New(map[string][]string{"istanbul": {"Kadıköy"}})
	require.NoError(t, err)
	r := New(Config{Gazetteer: gz, Geocoder: &fakeGeo{}, Cache: cache.NewMemory()})
	assert.Equal(t, DefaultLocalMinConfidence, r.localMin)
	assert.Equal(t, DefaultPositiveTTL, r.posTTL)
	assert.Equal(t, DefaultNegativeTTL, r.negTTL)

	r = New(Config{Gazetteer: gz, Geocoder: &fakeGeo{}, Cache: cache.NewMemory(), LocalMinConfidence: 0.5})
	assert.Equal(t, 0.5, r.localMin)
}

func TestResolveGeocodeNone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	h.geo.search = func(string) nominatim.SearchResult {
		return nominatim.SearchResult{OK: false, Status: 503, Detail: "unavailable"}
	}
	addr := "Xyzqw Sk. 99"

	res := h.r.Resolve(ctx, addr, "İstanbul")
	assert.Equal(t, MethodGeocodeNone, res.Method)
	assert.Equal(t, "", res.District)
	assert.Equal(t, 0.0, res.Confidence)
	want := queryplan.Plan(addr, "İstanbul")
	assert.Equal(t, want, h.geo.searches, "every planned query is tried in order")
	assert.Equal(t, GeocodeMiss{Status: 503, TriedQueries: want}, res.Detail)
	assert.Zero(t, h.geo.reverses)
	assert.Equal(t, DefaultNegativeTTL, h.expiresIn(t, "İstanbul", addr))

	h.clk.advance(DefaultNegativeTTL)
	cached := h.r.Resolve(ctx, addr, "İstanbul")
	assert.Equal(t, MethodGeocodeNone+CacheMarker, cached.Method)
	assert.Equal(t, res.Detail, cached.Detail)
	assert.Len(t, h.geo.searches, len(want))

	h.clk.advance(time.Second)
	_ = h.r.Resolve(ctx, addr, "İstanbul")
	assert.Len(t, h.geo.searches, 2*len(want), "expired negative result triggers a fresh lookup")
}

func TestResolveStopsAtFirstHit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	addr := "Atatürk Mah. 123 Sk. No:5"
	plan := queryplan.Plan(addr, "İzmir")
	require.GreaterOrEqual(t, len(plan), 3)
	h.geo.search = func(q string) nominatim.SearchResult {
		if q == plan[1] {
			return hitAt(38.42, 27.13, "Atatürk, Konak")(q)
		}
		return nominatim.SearchResult{OK: true, Status: 200}
	}
	h.geo.reverse = reverseTo(nominatim.Address{Town: "Konak"})

	res := h.r.Resolve(ctx, addr, "İzmir")
	assert.Equal(t, plan[:2], h.geo.searches)
	assert.Equal(t, 1, h.geo.reverses)
	require.IsType(t, GeocodeHit{}, res.Detail)
	assert.Equal(t, plan[1], res.Detail.(GeocodeHit).UsedQuery)
	assert.Equal(t, "Konak", res.District)
}

func TestResolveReverseFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	h.geo.search = hitAt(41.04, 29.0, "Barbaros Bulvarı, Beşiktaş")
	h.geo.reverse = func(float64, float64) nominatim.ReverseResult {
		return nominatim.ReverseResult{OK: false, Status: 500, Detail: "boom"}
	}
	addr := "Qwrtz Sk. 7"

	res := h.r.Resolve(ctx, addr, "İstanbul")
	assert.Equal(t, MethodReverseFailed, res.Method)
	assert.Equal(t, "", res.District)
	assert.Equal(t, ReverseFailure{
		Status:      500,
		Detail:      "boom",
		UsedQuery:   h.geo.searches[0],
		Lat:         41.04,
		Lon:         29.0,
		DisplayName: "Barbaros Bulvarı, Beşiktaş",
	}, res.Detail)
	assert.Equal(t, DefaultNegativeTTL, h.expiresIn(t, "İstanbul", addr))

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"district": null, "confidence": 0, "method": "reverse-failed", "candidates": [],
		"debug": {"status": 500, "detail": "boom", "usedQuery": "Qwrtz Sk., İstanbul, Türkiye"},
		"meta": {"lat": 41.04, "lon": 29, "display_name": "Barbaros Bulvarı, Beşiktaş"}
	}`, string(b))
}

func TestResolveReverseWithoutAddress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	h.geo.search = hitAt(41, 29, "x")
	h.geo.reverse = func(float64, float64) nominatim.ReverseResult {
		return nominatim.ReverseResult{OK: true, Status: 200}
	}
	res := h.r.Resolve(ctx, "Qwrtz Sk. 7", "İstanbul")
	assert.Equal(t, MethodReverseFailed, res.Method)
}

func TestResolveGeocodePositive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	h.geo.search = hitAt(41.02, 29.01, "Selimiye, Üsküdar, İstanbul")
	rev := nominatim.Address{County: "Üsküdar", Suburb: "Selimiye", City: "İstanbul", State: "İstanbul"}
	h.geo.reverse = reverseTo(rev)
	addr := "Qwrtz Sk. 7"

	res := h.r.Resolve(ctx, addr, "İstanbul")
	assert.Equal(t, "Üsküdar", res.District)
	assert.Equal(t, GeocodeConfidence, res.Confidence)
	assert.Equal(t, MethodGeocode, res.Method)
	assert.Equal(t, GeocodeHit{
		UsedQuery:     h.geo.searches[0],
		Lat:           41.02,
		Lon:           29.01,
		DisplayName:   "Selimiye, Üsküdar, İstanbul",
		ReverseFields: rev,
	}, res.Detail)
	assert.Equal(t, DefaultPositiveTTL, h.expiresIn(t, "İstanbul", addr))

	h.clk.advance(DefaultPositiveTTL - time.Minute)
	cached := h.r.Resolve(ctx, addr, "İstanbul")
	assert.Equal(t, MethodGeocode+CacheMarker, cached.Method)
	assert.Equal(t, res.Detail, cached.Detail)
	assert.Equal(t, "Üsküdar", cached.District)
	assert.Equal(t, 1, h.geo.reverses)

	meta, ok := cached.Meta().(*wireMeta)
	require.True(t, ok)
	assert.Equal(t, "Selimiye", meta.ReverseFields.Suburb)
}

func TestResolvePassthroughDistrict(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	h.geo.search = hitAt(41.1, 29.05, "Sarıyer")
	h.geo.reverse = reverseTo(nominatim.Address{County: "Sarıyer"})

	res := h.r.Resolve(ctx, "Qwrtz Sk. 7", "İstanbul")
	assert.Equal(t, "Sarıyer", res.District)
	assert.Equal(t, GeocodeConfidence, res.Confidence)
}

func TestResolveReverseWithoutDistrictField(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	h.geo.search = hitAt(41, 29, "somewhere")
	h.geo.reverse = reverseTo(nominatim.Address{Road: "Sahil Yolu", State: "İstanbul"})

	res := h.r.Resolve(ctx, "Qwrtz Sk. 7", "İstanbul")
	assert.Equal(t, MethodGeocode, res.Method)
	assert.Equal(t, "", res.District)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, DefaultNegativeTTL, h.expiresIn(t, "İstanbul", "Qwrtz Sk. 7"))
}

func TestCacheKeyNormalizes(t *testing.T) {
	assert.Equal(t, CacheKey("İSTANBUL", "Kadıköy  Moda"), CacheKey("istanbul", "kadikoy moda"))
	assert.NotEqual(t, CacheKey("İstanbul", "Moda"), CacheKey("İzmir", "Moda"))
	assert.NotEqual(t, CacheKey("İstanbul Kadıköy", "x"), CacheKey("İstanbul", "Kadıköy x"))
	assert.NotEqual(t, CacheKey("İstanbul||Kadıköy", "x"), CacheKey("İstanbul", "Kadıköy||x"))
	assert.Equal(t, "istanbul||kadikoy moda", CacheKey(" İSTANBUL ", "Kadıköy, Moda"))
}

func TestResolveCacheKeepsCityAndAddressApart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	h.geo.search = hitAt(40.99, 29.03, "Kadıköy, İstanbul")
	h.geo.reverse = reverseTo(nominatim.Address{County: "Kadıköy", State: "İstanbul"})

	first := h.r.Resolve(ctx, "Qwrtz", "İstanbul Kadıköy")
	assert.Equal(t, MethodNoCityData, first.Method)

	second := h.r.Resolve(ctx, "Kadıköy Qwrtz", "İstanbul")
	assert.False(t, second.FromCache())
	assert.Equal(t, "Kadıköy", second.District)
	assert.Equal(t, MethodExactWord, second.Method)
	assert.Zero(t, h.geo.calls())
}

func TestCacheSize(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	_ = h.r.Resolve(ctx, "a", "Marslı")
	_ = h.r.Resolve(ctx, "Bağdat Caddesi No:45, Kadıköy", "İstanbul")
	assert.Equal(t, 2, h.r.CacheSize(ctx))

	h.clk.advance(DefaultNegativeTTL + time.Second)
	assert.Equal(t, 1, h.r.CacheSize(ctx))
}

func TestResolveWithRedisCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	gz, err := gazetteer.New(map[string][]string{"istanbul": {"Kadıköy", "Üsküdar"}})
	require.NoError(t, err)
	geo := &fakeGeo{}
	r := New(Config{Gazetteer: gz, Geocoder: geo, Cache: cache.NewRedis(rc, "")})

	res := r.Resolve(ctx, "Bağdat Caddesi No:45, Kadıköy", "İstanbul")
	assert.Equal(t, "Kadıköy", res.District)
	key := cache.DefaultPrefix + CacheKey("İstanbul", "Bağdat Caddesi No:45, Kadıköy")
	assert.Equal(t, DefaultPositiveTTL, mr.TTL(key))

	_ = r.Resolve(ctx, "x", "Marslı")
	assert.Equal(t, DefaultNegativeTTL, mr.TTL(cache.DefaultPrefix+CacheKey("Marslı", "x")))

	again := r.Resolve(ctx, "Bağdat Caddesi No:45, Kadıköy", "İstanbul")
	assert.Equal(t, MethodExactWord+CacheMarker, again.Method)
	assert.Equal(t, 2, r.CacheSize(ctx))
}

func TestResultJSON(t *testing.T) {
	res := Result{Method: MethodGeocodeNone, Detail: GeocodeMiss{Status: 0, TriedQueries: []string{"a, Türkiye"}}}
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"district":null,"confidence":0,"method":"geocode-none","candidates":[],
		"debug":{"status":0,"triedQueries":["a, Türkiye"]}}`, string(b))

	var back Result
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, res.Detail, back.Detail)
	assert.Nil(t, back.Meta())

	local := Result{District: "Kadıköy", Confidence: 0.98, Method: MethodExactWord,
		Candidates: []Candidate{{District: "Kadıköy", Confidence: 0.98}}}
	b, err = json.Marshal(local)
	require.NoError(t, err)
	assert.JSONEq(t, `{"district":"Kadıköy","confidence":0.98,"method":"exact-word",
		"candidates":[{"district":"Kadıköy","confidence":0.98}]}`, string(b))
}
