// 离线构建区县字典：读取省份/区县原始 JSON，输出按城市键分组、去重并按土耳其语排序的 districts.json
package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"ilce-api/internal/gazetteer"
	"ilce-api/internal/logger"
	"ilce-api/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	in := flag.String("in", utils.EnvString("DISTRICTS_SOURCE", filepath.Join("data", "turkey-geo.json")), "province/district source JSON")
	out := flag.String("out", utils.EnvString("DISTRICTS_PATH", "districts.json"), "gazetteer output path")
	flag.Parse()

	f, err := os.Open(*in)
	if err != nil {
		l.Error("source_open_error", "path", *in, "err", err)
		os.Exit(1)
	}
	defer f.Close()

	ps, err := gazetteer.ParseProvinces(f)
	if err != nil {
		l.Error("source_parse_error", "path", *in, "err", err)
		os.Exit(1)
	}
	m := gazetteer.Build(ps)
	// 输出必须能被服务端加载（非空、键唯一）
	if _, err := gazetteer.New(m); err != nil {
		l.Error("gazetteer_invalid", "err", err)
		os.Exit(1)
	}
	if err := gazetteer.WriteJSON(*out, m); err != nil {
		l.Error("gazetteer_write_error", "path", *out, "err", err)
		os.Exit(1)
	}
	n := 0
	for _, ds := range m {
		n += len(ds)
	}
	l.Info("gazetteer_built", "path", *out, "cities", len(m), "districts", n)
}
