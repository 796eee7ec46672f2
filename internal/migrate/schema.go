package migrate

import (
	"database/sql"

	"ilce-api/internal/logger"
)

// 背景：首次运行自动创建解析审计与统计表；客户表 IASCUSTOMER 属于外部系统，不在此创建
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(db *sql.DB) error {
	for i, s := range schema {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS _district_resolutions (
            id BIGSERIAL PRIMARY KEY,
            customer TEXT NOT NULL,
            city TEXT NOT NULL,
            address TEXT NOT NULL,
            district TEXT,
            confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
            method TEXT NOT NULL,
            detail JSONB,
            rows_updated BIGINT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
	`CREATE INDEX IF NOT EXISTS idx_district_resolutions_customer ON _district_resolutions(customer, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS _district_stats_total (
            id INT PRIMARY KEY,
            total_requests BIGINT NOT NULL DEFAULT 0,
            total_found BIGINT NOT NULL DEFAULT 0
        )`,
	`CREATE TABLE IF NOT EXISTS _district_stats_daily (
            day DATE PRIMARY KEY,
            requests BIGINT NOT NULL DEFAULT 0,
            found BIGINT NOT NULL DEFAULT 0
        )`,
	`INSERT INTO _district_stats_total(id, total_requests, total_found)
         VALUES(1, 0, 0)
         ON CONFLICT (id) DO NOTHING`,
}
