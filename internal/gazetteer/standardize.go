package gazetteer

import (
	"strings"

	"ilce-api/internal/textnorm"
)

// 文档注释：将地理编码返回的区县猜测映射到字典中的规范写法
// 背景：Nominatim 返回的行政区名与字典写法常有差异（后缀"İlçesi"、大小写、变音符），需回落到字典拼写后才能入库。
// 返回：空猜测返回空串；精确匹配优先，其次子串包含（双向）；均未命中时原样返回猜测值。
func (g *Gazetteer) Standardize(city, guess string) string {
	name, _ := g.StandardizeStrict(city, guess)
	return name
}

// StandardizeStrict：同 Standardize，额外返回是否命中字典（false 表示原样透传）
func (g *Gazetteer) StandardizeStrict(city, guess string) (string, bool) {
	if strings.TrimSpace(guess) == "" {
		return "", false
	}
	ds, _ := g.Lookup(city)
	gn := textnorm.Normalize(guess)
	if gn == "" {
		return guess, false
	}
	for _, d := range ds {
		if textnorm.Normalize(d) == gn {
			return d, true
		}
	}
	for _, d := range ds {
		dn := textnorm.Normalize(d)
		if dn == "" {
			continue
		}
		if strings.Contains(dn, gn) || strings.Contains(gn, dn) {
			return d, true
		}
	}
	return guess, false
}
