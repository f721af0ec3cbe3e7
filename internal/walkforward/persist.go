package walkforward

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"marlin/internal/store"
	"marlin/internal/store/model"
)

// Persist 将一次验证的全部周期写入存储。
func Persist(ctx context.Context, repo store.CycleRepository, report *Report) error {
	if report == nil || len(report.Cycles) == 0 {
		return nil
	}
	rows := make([]model.CycleModel, 0, len(report.Cycles))
	now := time.Now()
	for _, c := range report.Cycles {
		params, err := json.Marshal(c.BestParams)
		if err != nil {
			return fmt.Errorf("周期 %d: 序列化参数失败: %w", c.Index, err)
		}
		trainM, err := json.Marshal(c.TrainMetrics)
		if err != nil {
			return fmt.Errorf("周期 %d: 序列化训练指标失败: %w", c.Index, err)
		}
		testM, err := json.Marshal(c.TestMetrics)
		if err != nil {
			return fmt.Errorf("周期 %d: 序列化测试指标失败: %w", c.Index, err)
		}
		rows = append(rows, model.CycleModel{
			SessionID:    report.SessionID,
			CycleIndex:   c.Index,
			TrainStartTS: c.TrainStartTS,
			TrainEndTS:   c.TrainEndTS,
			TestStartTS:  c.TestStartTS,
			TestEndTS:    c.TestEndTS,
			BestParams:   datatypes.JSON(params),
			TrainMetrics: datatypes.JSON(trainM),
			TestMetrics:  datatypes.JSON(testM),
			CreatedAt:    now,
		})
	}
	return repo.SaveCycles(ctx, rows)
}
