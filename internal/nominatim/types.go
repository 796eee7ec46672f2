package nominatim

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Coord：Nominatim 以字符串返回经纬度，兼容数字形式
type Coord float64

func (c *Coord) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*c = Coord(f)
	return nil
}

func (c Coord) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(c))
}

// 文档注释：结构化地址（addressdetails=1）
// 背景：土耳其的区县（ilçe）在 OSM 中可能落在 city_district/county/district/town 等不同字段，需按优先级挑选。
type Address struct {
	CityDistrict  string `json:"city_district,omitempty"`
	County        string `json:"county,omitempty"`
	District      string `json:"district,omitempty"`
	Borough       string `json:"borough,omitempty"`
	Municipality  string `json:"municipality,omitempty"`
	Town          string `json:"town,omitempty"`
	Suburb        string `json:"suburb,omitempty"`
	Neighbourhood string `json:"neighbourhood,omitempty"`
	Quarter       string `json:"quarter,omitempty"`
	Road          string `json:"road,omitempty"`
	City          string `json:"city,omitempty"`
	Province      string `json:"province,omitempty"`
	State         string `json:"state,omitempty"`
	Postcode      string `json:"postcode,omitempty"`
	Country       string `json:"country,omitempty"`
	CountryCode   string `json:"country_code,omitempty"`
}

// PickDistrict：按 city_district → county → district → borough → municipality → town 取第一个非空值
func (a *Address) PickDistrict() string {
	if a == nil {
		return ""
	}
	for _, v := range []string{a.CityDistrict, a.County, a.District, a.Borough, a.Municipality, a.Town} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Place：正向搜索命中项
type Place struct {
	PlaceID     int64    `json:"place_id"`
	Lat         Coord    `json:"lat"`
	Lon         Coord    `json:"lon"`
	DisplayName string   `json:"display_name"`
	Category    string   `json:"category,omitempty"`
	Type        string   `json:"type,omitempty"`
	Importance  float64  `json:"importance,omitempty"`
	Address     *Address `json:"address,omitempty"`
}

// 文档注释：正向搜索结果
// 约束：OK=false 时 Places 为空，Status 为最后一次 HTTP 状态（传输错误为 0），Detail 为截断后的诊断信息。
type SearchResult struct {
	OK     bool
	Status int
	Places []Place
	Detail string
}

// 文档注释：逆向查询结果
// 约束：服务端返回 {"error": ...} 时 OK 仍为 true，但 Address 为 nil，由调用方判定为失败。
type ReverseResult struct {
	OK          bool
	Status      int
	Address     *Address
	DisplayName string
	Detail      string
}

type reverseBody struct {
	DisplayName string   `json:"display_name"`
	Address     *Address `json:"address"`
	Error       string   `json:"error"`
}
