// 批量补全客户区县：从客户表（或 CSV）读取区县为空的客户，限流解析后回写
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ilce-api/internal/backfill"
	"ilce-api/internal/cache"
	"ilce-api/internal/gazetteer"
	"ilce-api/internal/logger"
	"ilce-api/internal/migrate"
	"ilce-api/internal/nominatim"
	"ilce-api/internal/resolver"
	"ilce-api/internal/store"
	"ilce-api/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Info("backfill_start")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gzPath := utils.EnvString("DISTRICTS_PATH", "districts.json")
	gz, err := gazetteer.Load(gzPath)
	if err != nil {
		l.Error("gazetteer_load_error", "path", gzPath, "err", err)
		os.Exit(1)
	}

	// 批处理共享 Redis 时可复用在线服务已缓存的结果
	var rc cache.Cache = cache.NewMemory()
	if strings.EqualFold(os.Getenv("CACHE_BACKEND"), "redis") {
		client := utils.OpenRedisFromEnv()
		if err := client.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			rc = cache.NewRedis(client, os.Getenv("REDIS_PREFIX"))
			defer client.Close()
		}
	}
	rv := resolver.New(resolver.Config{
		Gazetteer:          gz,
		Geocoder:           nominatim.NewFromEnv(),
		Cache:              rc,
		LocalMinConfidence: utils.EnvFloat("LOCAL_MIN_CONFIDENCE", resolver.DefaultLocalMinConfidence),
	})

	company := utils.EnvString("CUSTOMER_COMPANY", "02")
	dryRun := strings.EqualFold(os.Getenv("BACKFILL_DRY_RUN"), "true")
	inPath := os.Getenv("BACKFILL_INPUT_FILE")

	var (
		st        *store.Store
		customers []store.Customer
	)
	if !dryRun || inPath == "" {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
			os.Exit(1)
		}
		if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		st = store.AttachDB(db)
	}

	// 输入源：客户表（默认）；可选 CSV 文件，"-" 表示标准输入
	switch inPath {
	case "":
		customers, err = st.PendingCustomers(ctx, company, utils.EnvInt("BACKFILL_LIMIT", 1000))
	case "-":
		customers, err = backfill.ReadCSV(os.Stdin)
	default:
		f, e := os.Open(inPath)
		if e != nil {
			l.Error("input_open_error", "err", e)
			os.Exit(1)
		}
		customers, err = backfill.ReadCSV(f)
		_ = f.Close()
	}
	if err != nil {
		l.Error("input_read_error", "err", err)
		os.Exit(1)
	}
	l.Info("backfill_input", "customers", len(customers), "dry_run", dryRun)

	var sink backfill.Sink
	if !dryRun {
		sink = st
	}
	enc := json.NewEncoder(os.Stdout)
	cfg := backfill.Config{
		Company:    company,
		Workers:    utils.EnvInt("BACKFILL_WORKERS", 4),
		RatePerMin: utils.EnvInt("BACKFILL_RATE_PER_MIN", 60),
		Timeout:    time.Duration(utils.EnvInt("BACKFILL_TIMEOUT_MS", 30000)) * time.Millisecond,
	}
	results := make(chan backfill.Outcome, 16)
	done := make(chan struct{})
	go func() {
		for o := range results {
			_ = enc.Encode(o)
		}
		close(done)
	}()
	sum := backfill.Run(ctx, cfg, customers, rv, sink, func(o backfill.Outcome) { results <- o })
	close(results)
	<-done
	l.Info("backfill_done", "total", sum.Total, "found", sum.Found, "updated", sum.Updated, "failed", sum.Failed)
}
