package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"marlin/internal/backtest"
	mcfg "marlin/internal/config"
	"marlin/internal/logger"
	"marlin/internal/store"
	resthttp "marlin/internal/transport/http"
	"marlin/internal/walkforward"
)

// App 负责应用级编排: 加载配置→初始化依赖→启动 HTTP 服务。
type App struct {
	cfg    *mcfg.Config
	store  store.Store
	runs   *backtest.Service
	wf     *walkforward.Service
	server *resthttp.Server
}

// NewApp 根据配置构建应用对象(不启动)。
func NewApp(cfg *mcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动服务, 阻塞直到 ctx 取消或出现错误。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	logger.Infof("[app] HTTP 服务监听 %s", a.cfg.App.HTTPAddr)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	err := group.Wait()
	a.Close()
	return err
}

// Close 等待在途任务并释放存储。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.runs != nil {
		a.runs.Close()
	}
	if a.wf != nil {
		a.wf.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("[app] 关闭存储失败: %v", err)
		}
	}
}
