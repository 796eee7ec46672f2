// 包 textnorm：土耳其语地址文本规范化，供字典键、地址匹配与缓存键共用
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// 兼容分解后去除组合附加符号（İ → I + U+0307 → I）
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// 文档注释：特殊字母替换表
// 背景：分解无法处理无点 ı，其余字母在分解后已退化为基础拉丁字母；保留完整映射使两种规范化共享同一张表。
// 约束：每个特殊字母只映射到一个 ASCII 字母；大写形式在小写化之后才会出现，故仅列小写。
var letters = strings.NewReplacer(
	"ı", "i",
	"ğ", "g",
	"ü", "u",
	"ş", "s",
	"ö", "o",
	"ç", "c",
)

func fold(s string) string {
	if s == "" {
		return ""
	}
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	out = strings.ToLowerSpecial(unicode.TurkishCase, out)
	return letters.Replace(out)
}

// 文档注释：完整规范化（地址、城市、缓存键）
// 背景：地址为自由文本，大小写、变音符与标点均不可信；统一折叠为 [a-z0-9] 与单个空格。
// 约束：幂等；空输入返回空串，不会失败。
func Normalize(s string) string {
	f := fold(s)
	var b strings.Builder
	b.Grow(len(f))
	space := true
	for _, r := range f {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// 文档注释：轻量规范化（字典键）
// 背景：离线构建字典时城市名作为键，仅做字母折叠与空白压缩，保留标点；与 Normalize 共用替换表，
// 因而仅大小写/变音符不同的原始键与查询键一定一致。
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(fold(s)), " ")
}

// Tokens：按空格切分完整规范化结果
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}
