package resolver

import (
	"encoding/json"
	"strings"

	"ilce-api/internal/localmatch"
	"ilce-api/internal/nominatim"
)

// 方法标签：本地匹配产生的标签沿用 localmatch，网络路径的标签在此定义
const (
	MethodNoCityData      = localmatch.MethodNoCityData
	MethodExactWord       = localmatch.MethodExactWord
	MethodExactMultiFuzzy = localmatch.MethodExactMultiFuzzy
	MethodFuzzy           = localmatch.MethodFuzzy
	MethodFuseNone        = localmatch.MethodFuseNone
	MethodGeocodeNone     = "geocode-none"
	MethodReverseFailed   = "reverse-failed"
	MethodGeocode         = "neighborhood-first-search+reverse-nominatim"

	// CacheMarker：缓存命中时追加在方法标签后
	CacheMarker = "+cache"

	// GeocodeConfidence：网络路径标准化成功后的固定置信度
	GeocodeConfidence = 0.95
)

type Candidate = localmatch.Candidate

// 文档注释：解析结果
// 背景：所有失败模式（城市不存在、远端不可用、逆向失败）都以结果值表达，Method 区分成因；调用方仅在 District 非空时写库。
// 约束：District 为空当且仅当 Confidence 为 0；Detail 随 Method 取不同变体，本地结果与 no-city-data 为 nil。
type Result struct {
	District   string
	Confidence float64
	Method     string
	Candidates []Candidate
	Detail     Detail
}

// Detail：结果附带的诊断/元数据变体（GeocodeMiss / ReverseFailure / GeocodeHit）
type Detail interface {
	isDetail()
}

// GeocodeMiss：所有正向查询均无命中
type GeocodeMiss struct {
	Status       int
	TriedQueries []string
}

// ReverseFailure：正向命中但逆向查询失败或无地址字段
type ReverseFailure struct {
	Status      int
	Detail      string
	UsedQuery   string
	Lat         float64
	Lon         float64
	DisplayName string
}

// GeocodeHit：正向 + 逆向成功，ReverseFields 为逆向原始地址字段
type GeocodeHit struct {
	UsedQuery     string
	Lat           float64
	Lon           float64
	DisplayName   string
	ReverseFields nominatim.Address
}

func (GeocodeMiss) isDetail()    {}
func (ReverseFailure) isDetail() {}
func (GeocodeHit) isDetail()     {}

// BaseMethod：去掉缓存标记后的方法标签
func (r Result) BaseMethod() string {
	return strings.TrimSuffix(r.Method, CacheMarker)
}

// FromCache：结果是否来自缓存
func (r Result) FromCache() bool {
	return strings.HasSuffix(r.Method, CacheMarker)
}

// Found：是否得到可写库的区县
func (r Result) Found() bool { return r.District != "" }

type wireMeta struct {
	UsedQuery     string             `json:"usedQuery,omitempty"`
	Lat           float64            `json:"lat"`
	Lon           float64            `json:"lon"`
	DisplayName   string             `json:"display_name"`
	ReverseFields *nominatim.Address `json:"reverse_fields,omitempty"`
}

type wireDebug struct {
	Status       int      `json:"status"`
	Detail       string   `json:"detail,omitempty"`
	UsedQuery    string   `json:"usedQuery,omitempty"`
	TriedQueries []string `json:"triedQueries,omitempty"`
}

type wireResult struct {
	District   *string     `json:"district"`
	Confidence float64     `json:"confidence"`
	Method     string      `json:"method"`
	Candidates []Candidate `json:"candidates"`
	Meta       *wireMeta   `json:"meta,omitempty"`
	Debug      *wireDebug  `json:"debug,omitempty"`
}

// Meta：对外审计用的元数据（坐标、显示名、逆向字段），无则为 nil
func (r Result) Meta() any {
	if m := r.meta(); m != nil {
		return m
	}
	return nil
}

func (r Result) meta() *wireMeta {
	switch d := r.Detail.(type) {
	case ReverseFailure:
		return &wireMeta{Lat: d.Lat, Lon: d.Lon, DisplayName: d.DisplayName}
	case GeocodeHit:
		f := d.ReverseFields
		return &wireMeta{UsedQuery: d.UsedQuery, Lat: d.Lat, Lon: d.Lon, DisplayName: d.DisplayName, ReverseFields: &f}
	}
	return nil
}

func (r Result) debug() *wireDebug {
	switch d := r.Detail.(type) {
	case GeocodeMiss:
		return &wireDebug{Status: d.Status, TriedQueries: d.TriedQueries}
	case ReverseFailure:
		return &wireDebug{Status: d.Status, Detail: d.Detail, UsedQuery: d.UsedQuery}
	}
	return nil
}

func (r Result) MarshalJSON() ([]byte, error) {
	w := wireResult{
		Confidence: r.Confidence,
		Method:     r.Method,
		Candidates: r.Candidates,
		Meta:       r.meta(),
		Debug:      r.debug(),
	}
	if r.District != "" {
		d := r.District
		w.District = &d
	}
	if w.Candidates == nil {
		w.Candidates = []Candidate{}
	}
	return json.Marshal(w)
}

func (r *Result) UnmarshalJSON(b []byte) error {
	var w wireResult
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = Result{Confidence: w.Confidence, Method: w.Method, Candidates: w.Candidates}
	if w.District != nil {
		r.District = *w.District
	}
	if r.Candidates == nil {
		r.Candidates = []Candidate{}
	}
	switch r.BaseMethod() {
	case MethodGeocodeNone:
		if w.Debug != nil {
			r.Detail = GeocodeMiss{Status: w.Debug.Status, TriedQueries: w.Debug.TriedQueries}
		}
	case MethodReverseFailed:
		d := ReverseFailure{}
		if w.Debug != nil {
			d.Status, d.Detail, d.UsedQuery = w.Debug.Status, w.Debug.Detail, w.Debug.UsedQuery
		}
		if w.Meta != nil {
			d.Lat, d.Lon, d.DisplayName = w.Meta.Lat, w.Meta.Lon, w.Meta.DisplayName
		}
		r.Detail = d
	case MethodGeocode:
		if w.Meta != nil {
			d := GeocodeHit{UsedQuery: w.Meta.UsedQuery, Lat: w.Meta.Lat, Lon: w.Meta.Lon, DisplayName: w.Meta.DisplayName}
			if w.Meta.ReverseFields != nil {
				d.ReverseFields = *w.Meta.ReverseFields
			}
			r.Detail = d
		}
	}
	return nil
}
