// 包 queryplan：由一条原始地址派生多条地理编码查询，提升远程服务的命中率
package queryplan

import (
	"regexp"
	"strings"
)

// Country：查询固定附加的国家名
const Country = "Türkiye"

var (
	reNoColon    = regexp.MustCompile(`(?i)\bno\s*:\s*\d+\b`)
	reNoPrefix   = regexp.MustCompile(`(?i)\bno\s*\d+\b`)
	reDigits     = regexp.MustCompile(`\b\d{1,5}\b`)
	reSpaces     = regexp.MustCompile(`\s+`)
	reSpaceComma = regexp.MustCompile(`\s+,`)
	reCommas     = regexp.MustCompile(`,(\s*,)+`)

	// 标记前紧邻的一段非数字、非逗号文本
	reNeighborhood = regexp.MustCompile(`(?i)([^\d,]+?)\s+(mahalles(i\b|İ)|mahalle\b|mah\.|mah\b|mh\.)`)
	reStreet       = regexp.MustCompile(`(?i)([^\d,]+?)\s+(caddes(i\b|İ)|cadde\b|cad\.|cd\.|sokağ[ıI]|sokak\b|sk\.|bulvar[ıI]|bulvar\b|blv\.)`)
)

// 文档注释：去除门牌号
// 背景：门牌号（"No:5"、"No5"、独立的 1~5 位数字）对行政区判定无益，反而降低远程搜索命中率。
func StripHouseNumbers(address string) string {
	s := reNoColon.ReplaceAllString(address, "")
	s = reNoPrefix.ReplaceAllString(s, "")
	s = reDigits.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	s = reSpaceComma.ReplaceAllString(s, ",")
	s = reCommas.ReplaceAllString(s, ",")
	return strings.Trim(strings.TrimSpace(s), ", ")
}

// ExtractNeighborhood：提取"Mahallesi/Mah./Mh."之前的街区名，未找到返回空串
func ExtractNeighborhood(address string) string {
	return extract(reNeighborhood, address)
}

// ExtractStreet：提取"Caddesi/Cad./Sokak/Sk./Bulvarı/Blv."之前的街道名，未找到返回空串
func ExtractStreet(address string) string {
	return extract(reStreet, address)
}

func extract(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// 文档注释：生成有序查询列表
// 背景：越具体的查询越靠前，首个命中即停止，尽量减少对限流服务的调用次数。
// 顺序：去门牌地址+城市 → 街区+城市 → 街区 Mahallesi+城市 → 街道 Caddesi+城市 → 去门牌地址（不带城市）。
// 约束：结果非空且去重（保持首次出现顺序）；空片段在拼接时跳过。
func Plan(address, city string) []string {
	base := StripHouseNumbers(address)
	nb := ExtractNeighborhood(address)
	st := ExtractStreet(address)
	city = strings.TrimSpace(city)

	qs := []string{join(base, city, Country)}
	if nb != "" {
		qs = append(qs, join(nb, city, Country), join(nb+" Mahallesi", city, Country))
	}
	if st != "" {
		qs = append(qs, join(st+" Caddesi", city, Country))
	}
	qs = append(qs, join(base, Country))
	return dedupe(qs)
}

func join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

func dedupe(qs []string) []string {
	seen := make(map[string]struct{}, len(qs))
	out := qs[:0]
	for _, q := range qs {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
