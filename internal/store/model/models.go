package model

import (
	"time"

	"gorm.io/datatypes"
)

// RunStatus 对应一次回测任务的生命周期。
const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunModel 持久化一次回测的输入、状态与完整结果。
// 结果明细(参数/指标/成交/资金曲线)以 JSON 存储, 结构随上层演进无需迁移。
type RunModel struct {
	ID          string         `gorm:"column:id;primaryKey"`
	Symbol      string         `gorm:"column:symbol;index"`
	Timeframe   string         `gorm:"column:timeframe"`
	Strategy    string         `gorm:"column:strategy;index"`
	Status      string         `gorm:"column:status;index"`
	Params      datatypes.JSON `gorm:"column:params"`
	Metrics     datatypes.JSON `gorm:"column:metrics"`
	Trades      datatypes.JSON `gorm:"column:trades"`
	Equity      datatypes.JSON `gorm:"column:equity"`
	InitialCash float64        `gorm:"column:initial_cash"`
	FinalValue  float64        `gorm:"column:final_value"`
	StartTS     int64          `gorm:"column:start_ts"`
	EndTS       int64          `gorm:"column:end_ts"`
	Error       string         `gorm:"column:error"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

func (RunModel) TableName() string { return "backtest_runs" }

// CycleModel 记录滚动前推验证中的一个周期。
type CycleModel struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID    string         `gorm:"column:session_id;index"`
	CycleIndex   int            `gorm:"column:cycle_index"`
	TrainStartTS int64          `gorm:"column:train_start_ts"`
	TrainEndTS   int64          `gorm:"column:train_end_ts"`
	TestStartTS  int64          `gorm:"column:test_start_ts"`
	TestEndTS    int64          `gorm:"column:test_end_ts"`
	BestParams   datatypes.JSON `gorm:"column:best_params"`
	TrainMetrics datatypes.JSON `gorm:"column:train_metrics"`
	TestMetrics  datatypes.JSON `gorm:"column:test_metrics"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
}

func (CycleModel) TableName() string { return "walkforward_cycles" }
