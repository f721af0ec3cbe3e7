package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/store"
	"marlin/internal/store/model"
	"marlin/internal/strategy"
)

// RunRequest 是外部(HTTP API)提交回测的载荷。
// 未给出的字段沿用服务级默认值。
type RunRequest struct {
	Strategy  string          `json:"strategy" binding:"required"`
	Params    json.RawMessage `json:"params"`
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	StartTS   int64           `json:"start_ts"`
	EndTS     int64           `json:"end_ts"`
}

// Service 负责异步执行回测: 提交即返回 run ID,
// 执行进度通过存储中的状态流转暴露。
type Service struct {
	base Config
	data market.LoadSpec
	st   store.Store
	sem  chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewService 构造回测服务。maxConcurrent 限制同时执行的回测数。
func NewService(base Config, data market.LoadSpec, st store.Store, maxConcurrent int) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Service{
		base: base.withDefaults(),
		data: data,
		st:   st,
		sem:  make(chan struct{}, maxConcurrent),
	}
}

// StartRun 校验请求并异步执行回测, 返回 run ID。
func (s *Service) StartRun(ctx context.Context, req RunRequest) (string, error) {
	factory, ok := strategy.Lookup(req.Strategy)
	if !ok {
		return "", fmt.Errorf("未注册的策略 %q, 可选: %v", req.Strategy, strategy.Names())
	}
	params, err := factory.ParseParamsJSON(req.Params)
	if err != nil {
		return "", err
	}

	cfg, spec, err := s.resolve(req)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", fmt.Errorf("服务已关闭")
	}
	s.wg.Add(1)
	s.mu.Unlock()

	runID := uuid.NewString()
	rawParams, _ := json.Marshal(strategy.Merge(factory.Defaults, params))
	now := time.Now()
	if err := s.st.Runs().Save(ctx, &model.RunModel{
		ID:          runID,
		Symbol:      cfg.Symbol,
		Timeframe:   cfg.TimeframeKey,
		Strategy:    factory.Name,
		Status:      model.RunStatusPending,
		Params:      rawParams,
		InitialCash: cfg.InitialCash,
		StartTS:     spec.Start,
		EndTS:       spec.End,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		s.wg.Done()
		return "", err
	}

	go s.execute(runID, factory, params, cfg, spec)
	return runID, nil
}

func (s *Service) execute(runID string, factory strategy.Factory, params strategy.Params, cfg Config, spec market.LoadSpec) {
	defer s.wg.Done()
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	ctx := context.Background()
	fail := func(err error) {
		logger.Errorf("[backtest] run %s 失败: %v", runID, err)
		if uerr := s.st.Runs().UpdateStatus(ctx, runID, model.RunStatusFailed, err.Error()); uerr != nil {
			logger.Errorf("[backtest] run %s 状态更新失败: %v", runID, uerr)
		}
	}

	if err := s.st.Runs().UpdateStatus(ctx, runID, model.RunStatusRunning, ""); err != nil {
		logger.Errorf("[backtest] run %s 状态更新失败: %v", runID, err)
	}
	candles, err := market.LoadCandles(ctx, spec)
	if err != nil {
		fail(err)
		return
	}
	eng, err := factory.Build(params)
	if err != nil {
		fail(err)
		return
	}
	res, err := NewSimulator(cfg).Run(ctx, eng, candles)
	if err != nil {
		fail(err)
		return
	}
	res.ID = runID
	res.Params = strategy.Merge(factory.Defaults, params)

	row, err := ToRunModel(res, model.RunStatusDone)
	if err != nil {
		fail(err)
		return
	}
	if err := s.st.Runs().Save(ctx, row); err != nil {
		fail(err)
		return
	}
	logger.Infof("[backtest] run %s 完成: %s %s 期末 %.2f", runID, res.Symbol, res.Timeframe, res.FinalValue)
}

// resolve 合并请求覆盖项与服务默认值。
func (s *Service) resolve(req RunRequest) (Config, market.LoadSpec, error) {
	cfg := s.base
	spec := s.data
	if sym := strings.ToUpper(strings.TrimSpace(req.Symbol)); sym != "" {
		cfg.Symbol = sym
		spec.Symbol = sym
	}
	if tf := strings.TrimSpace(req.Timeframe); tf != "" {
		parsed, err := market.ParseTimeframe(tf)
		if err != nil {
			return Config{}, market.LoadSpec{}, err
		}
		cfg.Timeframe = parsed
		cfg.TimeframeKey = parsed.Key
		spec.Timeframe = parsed
	}
	if req.StartTS > 0 {
		spec.Start = req.StartTS
	}
	if req.EndTS > 0 {
		spec.End = req.EndTS
	}
	return cfg, spec, nil
}

// GetRun 读取一条回测记录, 不存在时返回 nil。
func (s *Service) GetRun(ctx context.Context, id string) (*model.RunModel, error) {
	return s.st.Runs().FindByID(ctx, id)
}

// ListRuns 列出最近的回测记录。
func (s *Service) ListRuns(ctx context.Context, limit int) ([]model.RunModel, error) {
	return s.st.Runs().ListRecent(ctx, limit)
}

// Close 等待在途回测完成。
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
