// 包 localmatch：基于本地字典的区县匹配（整词精确命中 → 模糊排序）
package localmatch

import (
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"

	"ilce-api/internal/gazetteer"
	"ilce-api/internal/logger"
	"ilce-api/internal/textnorm"
)

// 方法标签（本地匹配产生）
const (
	MethodNoCityData      = "no-city-data"
	MethodExactWord       = "exact-word"
	MethodExactMultiFuzzy = "exact-multi+fuzzy"
	MethodFuzzy           = "fuzzy"
	MethodFuseNone        = "fuse-none"
)

const (
	ExactConfidence = 0.98
	// 模糊排序结果的置信度上限，始终低于整词唯一命中
	FuzzyMaxConfidence = 0.9
	// 差异超过期望内容 35% 的结果被拒绝
	Threshold   = 0.35
	MinMatchLen = 3
	TopN        = 5
)

// Candidate：候选区县与启发式置信度（越高越可信，范围 [0,1]）
type Candidate struct {
	District   string  `json:"district"`
	Confidence float64 `json:"confidence"`
}

// Outcome：本地匹配结果；District 为空当且仅当 Confidence 为 0
type Outcome struct {
	District   string
	Confidence float64
	Method     string
	Candidates []Candidate
}

// 文档注释：本地匹配器
// 背景：不依赖网络，对字典中出现的区县名做整词命中与近似匹配；作为远程地理编码前的快速预检。
// 约束：只读访问字典，可并发使用。
type Matcher struct {
	gz *gazetteer.Gazetteer
}

func New(gz *gazetteer.Gazetteer) *Matcher { return &Matcher{gz: gz} }

type scored struct {
	idx   int
	name  string
	score float64 // 归一化编辑距离，0 为完全一致
	jw    float64
}

// 文档注释：匹配地址所属区县
// 背景：整词唯一命中直接返回 0.98；零个或多个命中时改用模糊排序，多命中时方法标签提示存在歧义。
// 约束：模糊排序得到的置信度不超过 0.9，歧义结果因此不会排在唯一命中之前。
// 返回：城市不在字典中返回 no-city-data；模糊无结果返回 fuse-none；候选最多 5 个。
func (m *Matcher) Match(city, address string) Outcome {
	ds, ok := m.gz.Lookup(city)
	if !ok {
		return Outcome{Method: MethodNoCityData, Candidates: []Candidate{}}
	}
	addr := textnorm.Normalize(address)
	padded := " " + addr + " "
	norms := make([]string, len(ds))
	var exact []string
	for i, d := range ds {
		dn := textnorm.Normalize(d)
		norms[i] = dn
		if len(dn) >= MinMatchLen && strings.Contains(padded, " "+dn+" ") {
			exact = append(exact, d)
		}
	}
	if len(exact) == 1 {
		return Outcome{
			District:   exact[0],
			Confidence: ExactConfidence,
			Method:     MethodExactWord,
			Candidates: []Candidate{{District: exact[0], Confidence: ExactConfidence}},
		}
	}
	ranked := rank(strings.Fields(addr), ds, norms)
	if len(ranked) == 0 {
		logger.L().Debug("local_match_none", "city", city, "exact_hits", len(exact))
		return Outcome{Method: MethodFuseNone, Candidates: []Candidate{}}
	}
	cands := make([]Candidate, len(ranked))
	for i, r := range ranked {
		cands[i] = Candidate{District: r.name, Confidence: confidence(r.score)}
	}
	method := MethodFuzzy
	if len(exact) > 1 {
		method = MethodExactMultiFuzzy
	}
	logger.L().Debug("local_match_fuzzy", "city", city, "top", cands[0].District, "conf", cands[0].Confidence, "method", method)
	return Outcome{District: cands[0].District, Confidence: cands[0].Confidence, Method: method, Candidates: cands}
}

// 文档注释：模糊排序
// 背景：区县名可出现在地址任意位置，故以与区县词数相近的连续词窗滑动比较，取最优窗口；窗口去空格后再比较一次以容忍
// "Kadı köy" 之类的拆写。
// 约束：窗口与区县名均需至少 3 个字符；距离超过阈值的候选被丢弃；同分时 Jaro-Winkler 相似度高者优先，再按字典顺序。
func rank(tokens []string, ds, norms []string) []scored {
	var out []scored
	for i, dn := range norms {
		if len(dn) < MinMatchLen {
			continue
		}
		best, bestJW := 1.0, 0.0
		k := len(strings.Fields(dn))
		for w := k - 1; w <= k+1; w++ {
			if w < 1 {
				continue
			}
			for j := 0; j+w <= len(tokens); j++ {
				win := strings.Join(tokens[j:j+w], " ")
				if len(win) < MinMatchLen {
					continue
				}
				s := distance(win, dn)
				if compact := strings.ReplaceAll(win, " ", ""); compact != win {
					if s2 := distance(compact, strings.ReplaceAll(dn, " ", "")); s2 < s {
						s = s2
					}
				}
				jw := smetrics.JaroWinkler(win, dn, 0.7, 4)
				if s < best || (s == best && jw > bestJW) {
					best, bestJW = s, jw
				}
			}
		}
		if best <= Threshold {
			out = append(out, scored{idx: i, name: ds[i], score: best, jw: bestJW})
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].score != out[b].score {
			return out[a].score < out[b].score
		}
		if out[a].jw != out[b].jw {
			return out[a].jw > out[b].jw
		}
		return out[a].idx < out[b].idx
	})
	if len(out) > TopN {
		out = out[:TopN]
	}
	return out
}

func distance(a, b string) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	if n == 0 {
		return 1
	}
	return float64(levenshtein.ComputeDistance(a, b)) / float64(n)
}

// 1 - 距离，截断到 [0,0.9] 并保留两位小数
func confidence(score float64) float64 {
	c := 1 - score
	if c < 0 {
		c = 0
	}
	if c > FuzzyMaxConfidence {
		c = FuzzyMaxConfidence
	}
	return math.Round(c*100) / 100
}
