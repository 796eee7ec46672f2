// 包 gazetteer：城市 → 区县名称字典，进程启动时一次性加载，运行期只读
package gazetteer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"ilce-api/internal/logger"
	"ilce-api/internal/textnorm"
)

var (
	ErrEmpty        = errors.New("gazetteer is empty")
	ErrDuplicateKey = errors.New("gazetteer keys collide after normalization")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// 文档注释：区县字典快照
// 背景：由离线构建步骤生成的 districts.json 加载而来，键为 NormalizeKey 后的城市名，值为去重且按土耳其语排序的区县列表。
// 约束：构建后不再修改，可被多个 goroutine 无锁并发读取；返回的切片不得被调用方改写。
type Gazetteer struct {
	byKey  map[string][]string
	byNorm map[string]string // Normalize(原始键) → 原始键
	keys   []string
}

// 文档注释：从文件加载字典
// 背景：文件缺失或格式错误属于配置级致命错误，由入口记录后退出进程。
func Load(path string) (*Gazetteer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gazetteer: %w", err)
	}
	defer f.Close()
	g, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("gazetteer %s: %w", path, err)
	}
	logger.L().Info("gazetteer_loaded", "path", path, "cities", g.Len())
	return g, nil
}

// Parse：解析 JSON 对象（城市键 → 区县数组），容忍 UTF-8 BOM
func Parse(r io.Reader) (*Gazetteer, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gazetteer: %w", err)
	}
	b = bytes.TrimPrefix(b, utf8BOM)
	var raw map[string][]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode gazetteer: %w", err)
	}
	return New(raw)
}

// 文档注释：由内存映射构建字典
// 约束：两个不同的原始键规范化后相同视为构建错误（查询将无法确定唯一城市）；空区县名被丢弃。
func New(raw map[string][]string) (*Gazetteer, error) {
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	g := &Gazetteer{
		byKey:  make(map[string][]string, len(raw)),
		byNorm: make(map[string]string, len(raw)),
		keys:   make([]string, 0, len(raw)),
	}
	for k, ds := range raw {
		n := textnorm.Normalize(k)
		if prev, ok := g.byNorm[n]; ok {
			return nil, fmt.Errorf("%w: %q and %q", ErrDuplicateKey, prev, k)
		}
		g.byNorm[n] = k
		g.keys = append(g.keys, k)
		list := make([]string, 0, len(ds))
		seen := make(map[string]struct{}, len(ds))
		for _, d := range ds {
			if d == "" {
				continue
			}
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			list = append(list, d)
		}
		g.byKey[k] = list
	}
	sort.Strings(g.keys)
	return g, nil
}

// 文档注释：按城市名查找区县列表
// 背景：先按规范化结果直接命中键；未命中时再比较各原始键的规范化形式（如 "i̇stanbul" 与 "istanbul"）。
// 返回：区县列表与是否命中；城市存在但列表为空时视为未命中。
func (g *Gazetteer) Lookup(city string) ([]string, bool) {
	if g == nil {
		return nil, false
	}
	n := textnorm.Normalize(city)
	if n == "" {
		return nil, false
	}
	if ds, ok := g.byKey[n]; ok && len(ds) > 0 {
		return ds, true
	}
	if ds, ok := g.byKey[textnorm.NormalizeKey(city)]; ok && len(ds) > 0 {
		return ds, true
	}
	if k, ok := g.byNorm[n]; ok {
		ds := g.byKey[k]
		return ds, len(ds) > 0
	}
	return nil, false
}

// Cities：全部原始城市键（已排序）
func (g *Gazetteer) Cities() []string {
	out := make([]string, len(g.keys))
	copy(out, g.keys)
	return out
}

func (g *Gazetteer) Len() int { return len(g.keys) }
