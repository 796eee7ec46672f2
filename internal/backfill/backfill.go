// 包 backfill：批量补全客户区县（并发解析 + 每分钟限流 + 回写）
package backfill

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"ilce-api/internal/logger"
	"ilce-api/internal/resolver"
	"ilce-api/internal/store"
)

// Resolver：解析入口
type Resolver interface {
	Resolve(ctx context.Context, address, city string) resolver.Result
}

// Sink：回写目标（store.Store 实现）；为 nil 时仅解析不写库
type Sink interface {
	UpdateCustomerDistrict(ctx context.Context, company, customer, district string) (int64, error)
	RecordResolution(ctx context.Context, customer, address, city string, res resolver.Result, rows int64) error
}

// 文档注释：批处理配置
// 约束：Workers 默认 4；RatePerMin 为每分钟最多解析次数（默认 60，与 Nominatim 每秒 1 次的使用政策一致）；Timeout 为单条解析超时。
type Config struct {
	Company    string
	Workers    int
	RatePerMin int
	Timeout    time.Duration
}

// Summary：批处理统计
type Summary struct {
	Total   int64 `json:"total"`
	Found   int64 `json:"found"`
	Updated int64 `json:"updated"`
	Failed  int64 `json:"failed"`
}

// Outcome：单条处理结果，供调用方输出明细
type Outcome struct {
	Customer string          `json:"customer"`
	Result   resolver.Result `json:"result"`
	Rows     int64           `json:"rows"`
	Err      string          `json:"error,omitempty"`
}

// 文档注释：执行批量补全
// 背景：客户表存量数据区县为空，逐条走与在线接口相同的解析流程；解析结果为空时不写库，仅记审计。
// 约束：限流阻塞直到允许或 ctx 取消；取消后未派发的任务不再处理；onDone 可为 nil，会被多个 goroutine 并发调用。
func Run(ctx context.Context, cfg Config, customers []store.Customer, rv Resolver, sink Sink, onDone func(Outcome)) Summary {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	perMin := cfg.RatePerMin
	if perMin <= 0 {
		perMin = 60
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 1)

	var sum Summary
	jobs := make(chan store.Customer, workers*4)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				out := process(ctx, cfg.Company, timeout, c, rv, sink)
				atomic.AddInt64(&sum.Total, 1)
				if out.Result.Found() {
					atomic.AddInt64(&sum.Found, 1)
				}
				if out.Rows > 0 {
					atomic.AddInt64(&sum.Updated, 1)
				}
				if out.Err != "" {
					atomic.AddInt64(&sum.Failed, 1)
				}
				if onDone != nil {
					onDone(out)
				}
			}
		}()
	}

dispatch:
	for _, c := range customers {
		select {
		case jobs <- c:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	return sum
}

func process(ctx context.Context, company string, timeout time.Duration, c store.Customer, rv Resolver, sink Sink) Outcome {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res := rv.Resolve(rctx, c.Address, c.City)
	out := Outcome{Customer: c.Customer, Result: res}
	if sink == nil {
		return out
	}
	if res.Found() {
		rows, err := sink.UpdateCustomerDistrict(ctx, company, c.Customer, res.District)
		if err != nil {
			logger.L().Error("backfill_update_error", "customer", c.Customer, "err", err)
			out.Err = err.Error()
			return out
		}
		out.Rows = rows
	}
	if err := sink.RecordResolution(ctx, c.Customer, c.Address, c.City, res, out.Rows); err != nil {
		logger.L().Warn("backfill_record_error", "customer", c.Customer, "err", err)
	}
	logger.L().Debug("backfill_item", "customer", c.Customer, "district", res.District, "method", res.Method, "rows", out.Rows)
	return out
}

// ErrBadHeader：CSV 首行缺少 customer/address/city 列
var ErrBadHeader = errors.New("csv header must contain customer, address, city")

// 文档注释：从 CSV 读取待处理客户
// 背景：数据库之外的输入源（导出文件或标准输入）；首行为表头，列名不区分大小写且顺序任意。
// 约束：地址或城市为空的行跳过；列数不一致的行报错。
func ReadCSV(r io.Reader) ([]store.Customer, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range head {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	ci, ok1 := idx["customer"]
	ai, ok2 := idx["address"]
	ti, ok3 := idx["city"]
	if !ok1 || !ok2 || !ok3 {
		return nil, ErrBadHeader
	}
	var out []store.Customer
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		c := store.Customer{
			Customer: strings.TrimSpace(rec[ci]),
			Address:  strings.TrimSpace(rec[ai]),
			City:     strings.TrimSpace(rec[ti]),
		}
		if c.Customer == "" || c.Address == "" || c.City == "" {
			continue
		}
		out = append(out, c)
	}
}
