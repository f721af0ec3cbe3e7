package backtest

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"marlin/internal/store/model"
)

// ToRunModel 将回测结果转为持久化模型。
func ToRunModel(res Result, status string) (*model.RunModel, error) {
	params, err := json.Marshal(res.Params)
	if err != nil {
		return nil, fmt.Errorf("序列化参数失败: %w", err)
	}
	metrics, err := json.Marshal(res.Metrics)
	if err != nil {
		return nil, fmt.Errorf("序列化指标失败: %w", err)
	}
	trades, err := json.Marshal(res.Trades)
	if err != nil {
		return nil, fmt.Errorf("序列化成交记录失败: %w", err)
	}
	equity, err := json.Marshal(res.Equity)
	if err != nil {
		return nil, fmt.Errorf("序列化资金曲线失败: %w", err)
	}
	return &model.RunModel{
		ID:          res.ID,
		Symbol:      res.Symbol,
		Timeframe:   res.Timeframe,
		Strategy:    res.Strategy,
		Status:      status,
		Params:      datatypes.JSON(params),
		Metrics:     datatypes.JSON(metrics),
		Trades:      datatypes.JSON(trades),
		Equity:      datatypes.JSON(equity),
		InitialCash: res.InitialCash,
		FinalValue:  res.FinalValue,
		StartTS:     res.StartTS,
		EndTS:       res.EndTS,
		CreatedAt:   res.CreatedAt,
		UpdatedAt:   res.CreatedAt,
	}, nil
}
