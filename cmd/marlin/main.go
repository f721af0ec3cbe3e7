package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	mcfg "marlin/internal/config"
	"marlin/internal/logger"
)

func main() {
	cfgPath := os.Getenv("MARLIN_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	args := extractConfigFlag(os.Args[1:], &cfgPath)
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		usage()
		return
	}

	cfg, err := mcfg.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功 (环境=%s, 数据源=%s)", cfg.App.Env, cfg.Data.Source)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg)
	case "backtest":
		err = runBacktest(ctx, cfg, args)
	case "optimize":
		err = runOptimize(ctx, cfg, args)
	case "walkforward":
		err = runWalkForward(ctx, cfg, args)
	case "fetch":
		err = runFetch(ctx, cfg, args)
	default:
		usage()
		log.Fatalf("未知子命令 %q", cmd)
	}
	if err != nil {
		log.Fatalf("%s 失败: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `marlin <command> [flags]

commands:
  serve        启动 HTTP 服务 (默认)
  backtest     按配置执行一次回测
  optimize     网格寻优并输出 Top 结果
  walkforward  滚动前推验证
  fetch        拉取并缓存 K 线数据

配置文件通过 -config 或环境变量 MARLIN_CONFIG 指定, 默认 configs/config.yaml`)
}

// extractConfigFlag 在子命令解析前摘出全局 -config 标志。
func extractConfigFlag(args []string, cfgPath *string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		if name != "-config" && name != "--config" {
			out = append(out, arg)
			continue
		}
		if hasValue {
			*cfgPath = value
			continue
		}
		if i+1 < len(args) {
			i++
			*cfgPath = args[i]
		}
	}
	return out
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
