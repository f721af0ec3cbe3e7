package resthttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"marlin/internal/backtest"
	"marlin/internal/config/loader"
	"marlin/internal/optimize"
	"marlin/internal/report"
	"marlin/internal/strategy"
	"marlin/internal/walkforward"
)

// Server 提供回测与验证相关的 HTTP API。
type Server struct {
	addr   string
	runs   *backtest.Service
	wf     *walkforward.Service
	grids  *loader.GridLoader
	wfBase walkforward.Request
	router *gin.Engine
}

// Config 描述 HTTP Server 的依赖。
type Config struct {
	Addr string
	Runs *backtest.Service
	WF   *walkforward.Service
	// Grids 可选, 提供热更新的寻优网格。
	Grids *loader.GridLoader
	// WFBase 提供 walkforward 请求的默认窗口与回测配置。
	WFBase walkforward.Request
}

// NewServer 构建 HTTP Server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Runs == nil {
		return nil, errors.New("backtest service 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8881"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:   cfg.Addr,
		runs:   cfg.Runs,
		wf:     cfg.WF,
		grids:  cfg.Grids,
		wfBase: cfg.WFBase,
		router: router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := s.router.Group("/api/backtest")
	api.GET("/strategies", s.handleStrategies)
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/report", s.handleRunReport)
	if s.wf != nil {
		wf := s.router.Group("/api/walkforward")
		wf.POST("/sessions", s.handleWFStart)
		wf.GET("/sessions", s.handleWFList)
		wf.GET("/sessions/:id", s.handleWFDetail)
	}
}

func (s *Server) handleStrategies(c *gin.Context) {
	names := strategy.Names()
	out := make([]gin.H, 0, len(names))
	for _, name := range names {
		f, ok := strategy.Lookup(name)
		if !ok {
			continue
		}
		out = append(out, gin.H{
			"name":        f.Name,
			"description": f.Description,
			"defaults":    f.Defaults,
		})
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}

func (s *Server) handleRunStart(c *gin.Context) {
	var req backtest.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.runs.StartRun(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": id})
}

func (s *Server) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	run, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunReport(c *gin.Context) {
	run, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	res := backtest.Result{
		ID:          run.ID,
		Symbol:      run.Symbol,
		Timeframe:   run.Timeframe,
		Strategy:    run.Strategy,
		StartTS:     run.StartTS,
		EndTS:       run.EndTS,
		InitialCash: run.InitialCash,
		FinalValue:  run.FinalValue,
	}
	if len(run.Metrics) > 0 {
		if err := json.Unmarshal(run.Metrics, &res.Metrics); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if len(run.Trades) > 0 {
		if err := json.Unmarshal(run.Trades, &res.Trades); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if len(run.Equity) > 0 {
		if err := json.Unmarshal(run.Equity, &res.Equity); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	html, err := report.BuildBacktestHTML(res)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (s *Server) handleWFStart(c *gin.Context) {
	var req struct {
		Strategy  string        `json:"strategy" binding:"required"`
		Metric    string        `json:"metric"`
		TrainBars int           `json:"train_bars"`
		TestBars  int           `json:"test_bars"`
		Grid      optimize.Grid `json:"grid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wfReq := s.wfBase
	wfReq.Strategy = strings.ToLower(strings.TrimSpace(req.Strategy))
	if req.Metric != "" {
		wfReq.Metric = req.Metric
	}
	if req.TrainBars > 0 {
		wfReq.TrainBars = req.TrainBars
	}
	if req.TestBars > 0 {
		wfReq.TestBars = req.TestBars
	}
	if len(req.Grid) > 0 {
		wfReq.Grid = req.Grid
	} else if s.grids != nil {
		if g, ok := s.grids.GridFor(wfReq.Strategy); ok {
			wfReq.Grid = g
		}
	}
	id, err := s.wf.Start(wfReq)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session_id": id})
}

func (s *Server) handleWFList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.wf.Jobs()})
}

func (s *Server) handleWFDetail(c *gin.Context) {
	id := c.Param("id")
	if job, ok := s.wf.Snapshot(id); ok {
		c.JSON(http.StatusOK, gin.H{"session": job})
		return
	}
	// 不在内存中时回落到落库的周期明细(历史会话)
	cycles, err := s.wf.History(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(cycles) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "cycles": cycles})
}

// Start 启动 HTTP 服务, 阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
