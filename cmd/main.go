// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ilce-api/internal/api"
	"ilce-api/internal/cache"
	"ilce-api/internal/gazetteer"
	"ilce-api/internal/logger"
	"ilce-api/internal/metrics"
	"ilce-api/internal/middleware"
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
	l.Debug("log_init_ok")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiBase := utils.EnvString("API_BASE", "/api")
	l.Debug("config_api_base", "base", apiBase)

	// 字典缺失或格式错误时拒绝启动
	gzPath := utils.EnvString("DISTRICTS_PATH", "districts.json")
	gz, err := gazetteer.Load(gzPath)
	if err != nil {
		l.Error("gazetteer_load_error", "path", gzPath, "err", err)
		os.Exit(1)
	}

	var rc cache.Cache = cache.NewMemory()
	if strings.EqualFold(utils.EnvString("CACHE_BACKEND", "memory"), "redis") {
		client := utils.OpenRedisFromEnv()
		if err := client.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
			l.Warn("cache_fallback_memory")
		} else {
			l.Info("redis_ping_ok")
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

	// 数据库为可选协作方：未配置时 /resolve-district 返回 503
	var cs api.CustomerStore
	if utils.PostgresConfigured() {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		l.Info("db_open_ok")
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
		} else {
			l.Info("db_ping_ok")
		}
		if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		cs = store.AttachDB(db)
	} else {
		l.Info("db_disabled")
	}

	company := utils.EnvString("CUSTOMER_COMPANY", "02")
	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(rv, cs, company)
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())

	addr := utils.EnvString("ADDR", ":3000")
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()
	l.Info("listening", "addr", addr, "base", apiBase, "cities", gz.Len(), "company", company)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("listen_error", "err", err)
		os.Exit(1)
	}
	l.Info("shutdown")
}
