// 包 cache：解析结果缓存（进程内 TTL 表 / Redis），正负结果由调用方传入不同 TTL
package cache

import (
	"context"
	"sync"
	"time"
)

// NoExpiry：永不过期
const NoExpiry time.Duration = 0

// 文档注释：结果缓存契约
// 背景：编排器以注入方式持有缓存，便于测试替身与多实例共享后端（Redis）。
// 约束：值为编码后的字节，写入与读取均为副本；ttl<=0 表示永不过期；Size 只统计未过期条目且不触发淘汰。
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Size(ctx context.Context) int
}

// Entry：缓存条目，ExpiresAt 为零值表示永不过期
type Entry struct {
	Value     []byte
	ExpiresAt time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// 文档注释：进程内缓存
// 背景：键空间受限于已见过的（城市, 地址）组合，不设容量上限；过期条目在读取时惰性淘汰，无后台清扫。
// 约束：读写加锁，可并发访问不同键；同键并发解析允许重复写入（结果幂等）。
type Memory struct {
	mu  sync.RWMutex
	m   map[string]Entry
	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]Entry), now: time.Now}
}

// WithClock：替换时钟（测试中模拟时间流逝）
func (c *Memory) WithClock(now func() time.Time) *Memory {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	now := c.now()
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		c.mu.Lock()
		// 重新确认，避免删掉并发写入的新值
		if cur, ok := c.m[key]; ok && cur.expired(c.now()) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return clone(e.Value), true
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := Entry{Value: clone(value)}
	if ttl > 0 {
		e.ExpiresAt = c.now().Add(ttl)
	}
	c.m[key] = e
}

func (c *Memory) Size(_ context.Context) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	n := 0
	for _, e := range c.m {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Entry：读取原始条目（含过期时间），仅用于诊断，不做淘汰
func (c *Memory) Entry(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[key]
	return e, ok
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
