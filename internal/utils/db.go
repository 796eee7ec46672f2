// 包 utils：数据库与 Redis 连接工具，统一环境变量读取
package utils

import (
	"database/sql"
	"os"
	"strconv"

	_ "github.com/lib/pq"

	"ilce-api/internal/logger"
)

// PostgresConfigured：是否配置了 PostgreSQL（PG_HOST 或 PG_DB 任一非空）
// 背景：数据库为可选协作方，未配置时服务只提供解析接口，不写客户表。
func PostgresConfigured() bool {
	return os.Getenv("PG_HOST") != "" || os.Getenv("PG_DB") != ""
}

// 文档注释：由环境变量拼装 DSN
// 约束：密码优先 PG_PASS，其次 PG_PASSWORD；库名默认 ilce。
func BuildPostgresDSNFromEnv() string {
	host := os.Getenv("PG_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("PG_PORT")
	if port == "" {
		port = "5432"
	}
	user := os.Getenv("PG_USER")
	if user == "" {
		user = "postgres"
	}
	pass := os.Getenv("PG_PASS")
	if pass == "" {
		pass = os.Getenv("PG_PASSWORD")
	}
	db := os.Getenv("PG_DB")
	if db == "" {
		db = "ilce"
	}
	ssl := os.Getenv("PG_SSLMODE")
	if ssl == "" {
		ssl = "disable"
	}
	dsn := "postgres://" + user
	if pass != "" {
		dsn += ":" + pass
	}
	dsn += "@" + host + ":" + port + "/" + db + "?sslmode=" + ssl
	return dsn
}

// OpenPostgresFromEnv：打开连接池，PG_MAX_OPEN_CONNS / PG_MAX_IDLE_CONNS 可调（默认 20 / 10）
func OpenPostgresFromEnv() (*sql.DB, error) {
	db, err := sql.Open("postgres", BuildPostgresDSNFromEnv())
	if err != nil {
		return nil, err
	}
	maxOpen := 20
	maxIdle := 10
	if v := os.Getenv("PG_MAX_OPEN_CONNS"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			maxOpen = n
		}
	}
	if v := os.Getenv("PG_MAX_IDLE_CONNS"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			maxIdle = n
		}
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	logger.L().Debug("pg_pool", "max_open", maxOpen, "max_idle", maxIdle)
	return db, nil
}
