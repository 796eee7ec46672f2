// 包 store: 提供与 PostgreSQL 的数据访问层，包含客户区县回写、解析审计与统计读写
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"ilce-api/internal/logger"
	"ilce-api/internal/resolver"
)

const (
	sqlUpdateCustomer = `UPDATE IASCUSTOMER SET ILCE = $1 WHERE COMPANY = $2 AND CUSTOMER = $3`
	sqlPending        = `SELECT CUSTOMER, ADRES, SEHIR FROM IASCUSTOMER
        WHERE COMPANY = $1 AND COALESCE(TRIM(ILCE), '') = '' AND COALESCE(TRIM(ADRES), '') <> '' AND COALESCE(TRIM(SEHIR), '') <> ''
        ORDER BY CUSTOMER LIMIT $2`
	sqlRecord = `INSERT INTO _district_resolutions(customer, city, address, district, confidence, method, detail, rows_updated)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8)`
	sqlIncrTotal   = `UPDATE _district_stats_total SET total_requests=total_requests+1, total_found=total_found+$1 WHERE id=1`
	sqlIncrDaily   = `INSERT INTO _district_stats_daily(day, requests, found) VALUES(current_date, 1, $1) ON CONFLICT (day) DO UPDATE SET requests=_district_stats_daily.requests+1, found=_district_stats_daily.found+EXCLUDED.found`
	sqlTotals      = `SELECT total_requests, total_found FROM _district_stats_total WHERE id=1`
	sqlTotalsToday = `SELECT requests, found FROM _district_stats_daily WHERE day=current_date`
)

// Store: 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

// 文档注释：回写客户区县
// 背景：仅在解析得到非空区县时调用；参数化语句防注入，客户号统一按字符串传入。
// 返回：受影响行数（0 表示客户不存在或公司不匹配）。
func (s *Store) UpdateCustomerDistrict(ctx context.Context, company, customer, district string) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlUpdateCustomer, district, company, customer)
	if err != nil {
		return 0, fmt.Errorf("update customer %s: %w", customer, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	logger.L().Debug("db_customer_update", "customer", customer, "district", district, "rows", n)
	return n, nil
}

// 文档注释：写入解析审计记录
// 背景：保留每次解析的方法标签、置信度与诊断信息（JSON），便于离线排查误判；空区县写入 NULL。
func (s *Store) RecordResolution(ctx context.Context, customer, address, city string, res resolver.Result, rows int64) error {
	var district sql.NullString
	if res.Found() {
		district = sql.NullString{String: res.District, Valid: true}
	}
	var detail any
	if res.Detail != nil {
		b, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("encode detail: %w", err)
		}
		detail = string(b)
	}
	if _, err := s.db.ExecContext(ctx, sqlRecord, customer, city, address, district, res.Confidence, res.Method, detail, rows); err != nil {
		return fmt.Errorf("record resolution: %w", err)
	}
	return nil
}

// Customer: 待补全区县的客户记录
type Customer struct {
	Customer string
	Address  string
	City     string
}

// 文档注释：读取区县为空的客户
// 背景：供批量补全命令分批拉取；地址或城市为空的记录无法解析，直接过滤。
func (s *Store) PendingCustomers(ctx context.Context, company string, limit int) ([]Customer, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, sqlPending, company, limit)
	if err != nil {
		return nil, fmt.Errorf("pending customers: %w", err)
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.Customer, &c.Address, &c.City); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// IncrStats: 每次解析后递增总计与当日计数；found 为真时同时递增命中数
func (s *Store) IncrStats(ctx context.Context, found bool) error {
	n := 0
	if found {
		n = 1
	}
	if _, err := s.db.ExecContext(ctx, sqlIncrTotal, n); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqlIncrDaily, n); err != nil {
		return err
	}
	logger.L().Debug("stats_incr", "found", found)
	return nil
}

// Totals: 统计返回结构，包含累计与当日解析次数及命中数
type Totals struct {
	Total      int64 `json:"total"`
	TotalFound int64 `json:"totalFound"`
	Today      int64 `json:"today"`
	TodayFound int64 `json:"todayFound"`
}

// GetTotals: 读取累计与当日计数；当日尚无记录时为 0
func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	if err := s.db.QueryRowContext(ctx, sqlTotals).Scan(&t.Total, &t.TotalFound); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, sqlTotalsToday).Scan(&t.Today, &t.TodayFound); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	logger.L().Debug("stats_totals", "total", t.Total, "today", t.Today)
	return &t, nil
}
