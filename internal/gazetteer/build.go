package gazetteer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"ilce-api/internal/textnorm"
)

// 文档注释：原始地理数据集中的省份记录
// 背景：对齐 turkey-geo.json 的字段命名（Province / Districts[].District），其余字段忽略。
type Province struct {
	Province  string `json:"Province"`
	Districts []struct {
		District string `json:"District"`
	} `json:"Districts"`
}

// ParseProvinces：解析原始数据集（JSON 数组），容忍 BOM
func ParseProvinces(r io.Reader) ([]Province, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	b = bytes.TrimPrefix(b, utf8BOM)
	var ps []Province
	if err := json.Unmarshal(b, &ps); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return ps, nil
}

// 文档注释：离线构建城市 → 区县映射
// 背景：键使用 NormalizeKey，运行期查询用同一张替换表，因此查找不依赖原始大小写与变音符。
// 约束：区县去重后按土耳其语排序规则排序（ç 在 c 之后、ı 在 i 之前）；空省名与空区县名被跳过；
// 同一规范化键出现多次时区县合并。
func Build(ps []Province) map[string][]string {
	col := collate.New(language.Turkish)
	sets := make(map[string]map[string]struct{})
	for _, p := range ps {
		key := textnorm.NormalizeKey(p.Province)
		if key == "" {
			continue
		}
		set, ok := sets[key]
		if !ok {
			set = make(map[string]struct{})
			sets[key] = set
		}
		for _, d := range p.Districts {
			if d.District != "" {
				set[d.District] = struct{}{}
			}
		}
	}
	out := make(map[string][]string, len(sets))
	for key, set := range sets {
		list := make([]string, 0, len(set))
		for d := range set {
			list = append(list, d)
		}
		col.SortStrings(list)
		out[key] = list
	}
	return out
}

// WriteJSON：以两空格缩进写出字典文件
func WriteJSON(path string, m map[string][]string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
