package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marlin/internal/analysis"
	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/strategy"
)

// Simulator 将一段历史 K 线与一个策略实例推演为成交记录和资金曲线。
// 单次回测严格串行：每根 K 线的决策都依赖之前累计的状态。
type Simulator struct {
	cfg Config
}

// NewSimulator 构造模拟器并补齐缺省配置。
func NewSimulator(cfg Config) *Simulator {
	return &Simulator{cfg: cfg.withDefaults()}
}

// brokerState 是一次推演过程中的账户状态。现金与手续费用 decimal
// 结算，避免长序列累计的浮点漂移。
type brokerState struct {
	cash       decimal.Decimal
	commission decimal.Decimal
	slippage   decimal.Decimal // 比例，如 2bps = 0.0002
	position   strategy.PositionState
	nextTrade  int64
}

func (b *brokerState) equity(price float64) float64 {
	eq := b.cash
	if b.position.Size > 0 {
		eq = eq.Add(decimal.NewFromFloat(b.position.Size).Mul(decimal.NewFromFloat(price)))
	}
	f, _ := eq.Float64()
	return f
}

// Run 执行一次完整回测。ctx 取消时返回 ctx.Err()。
func (s *Simulator) Run(ctx context.Context, eng strategy.Engine, candles []market.Candle) (Result, error) {
	if eng == nil {
		return Result{}, fmt.Errorf("strategy engine 不能为空")
	}
	if err := market.EnsureAscending(candles); err != nil {
		return Result{}, err
	}
	if err := eng.Prepare(candles); err != nil {
		return Result{}, err
	}

	cfg := s.cfg
	broker := &brokerState{
		cash:       decimal.NewFromFloat(cfg.InitialCash),
		commission: decimal.NewFromFloat(cfg.Commission),
		slippage:   decimal.NewFromFloat(cfg.SlippageBps).Div(decimal.NewFromInt(10000)),
		nextTrade:  1,
	}

	result := Result{
		ID:          uuid.NewString(),
		Symbol:      cfg.Symbol,
		Timeframe:   cfg.TimeframeKey,
		Strategy:    eng.Name(),
		StartTS:     candles[0].OpenTime,
		EndTS:       candles[len(candles)-1].CloseTime,
		InitialCash: cfg.InitialCash,
		CreatedAt:   time.Now(),
	}
	equity := make([]EquityPoint, 0, len(candles))
	var trades []Trade
	var pnls []float64

	for idx, candle := range candles {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		intent, pos := eng.OnBar(idx, broker.equity(candle.Close), broker.position, false)
		broker.position = pos
		if intent != nil {
			trade, pnl, fill := s.execute(broker, idx, candle, *intent)
			if trade != nil {
				trades = append(trades, *trade)
				if trade.Action != "buy" {
					pnls = append(pnls, pnl)
				}
			}
			broker.position = eng.OnFill(fill, broker.position)
		}
		equity = append(equity, EquityPoint{TS: candle.CloseTime, Equity: broker.equity(candle.Close)})
	}

	// 数据走完仍在持仓则强制平仓，避免结果含未实现盈亏
	if broker.position.Size > 0 {
		idx := len(candles) - 1
		last := candles[idx]
		trade, pnl, fill := s.execute(broker, idx, last, strategy.OrderIntent{
			Kind: strategy.IntentClose, Reason: "end_of_data", BarIndex: idx,
		})
		if trade != nil {
			trades = append(trades, *trade)
			pnls = append(pnls, pnl)
			broker.position = eng.OnFill(fill, broker.position)
			equity[len(equity)-1] = EquityPoint{TS: last.CloseTime, Equity: broker.equity(last.Close)}
		}
	}

	result.Trades = trades
	result.Equity = equity
	result.FinalValue = equity[len(equity)-1].Equity

	metrics, err := analysis.Compute(analysis.Input{
		InitialValue:   cfg.InitialCash,
		FinalValue:     result.FinalValue,
		EquityValues:   equityValues(equity),
		TradePnLs:      pnls,
		StartTS:        result.StartTS,
		EndTS:          result.EndTS,
		PeriodsPerYear: cfg.Timeframe.PeriodsPerYear(),
	})
	if err != nil {
		logger.Warnf("[backtest] run %s 指标计算不完整: %v", result.ID, err)
	}
	result.Metrics = metrics
	return result, nil
}

// execute 以当根收盘价撮合意图。现金不足即拒单：持仓不动，
// 策略收到 Rejected 回报后下一根可重新评估。
func (s *Simulator) execute(b *brokerState, idx int, candle market.Candle, intent strategy.OrderIntent) (*Trade, float64, strategy.Fill) {
	price := decimal.NewFromFloat(candle.Close)
	reject := func() (*Trade, float64, strategy.Fill) {
		return nil, 0, strategy.Fill{BarIndex: idx, Kind: intent.Kind, Rejected: true, Remaining: b.position.Size}
	}
	if candle.Close <= 0 {
		return reject()
	}

	switch intent.Kind {
	case strategy.IntentBuy:
		if b.position.Size > 0 {
			logger.Debugf("[backtest] bar %d 重复买入意图被忽略", idx)
			return reject()
		}
		execPrice := price.Mul(decimal.NewFromInt(1).Add(b.slippage))
		qty := decimal.NewFromFloat(intent.Size)
		if intent.Size <= 0 {
			fraction := decimal.NewFromFloat(s.cfg.CashFraction)
			qty = b.cash.Mul(fraction).Div(execPrice)
		}
		if qty.Sign() <= 0 {
			return reject()
		}
		notional := qty.Mul(execPrice)
		fee := notional.Mul(b.commission)
		cost := notional.Add(fee)
		if cost.GreaterThan(b.cash) {
			logger.Debugf("[backtest] bar %d 买入被拒: 需要 %s, 现金 %s", idx, cost.StringFixed(4), b.cash.StringFixed(4))
			return reject()
		}
		b.cash = b.cash.Sub(cost)
		qtyF, _ := qty.Float64()
		priceF, _ := execPrice.Float64()
		trade := s.newTrade(b, idx, candle, "buy", priceF, qtyF, fee, 0, intent.Reason)
		return trade, 0, strategy.Fill{BarIndex: idx, Kind: intent.Kind, Price: priceF, Size: qtyF, Remaining: qtyF}

	case strategy.IntentSell, strategy.IntentClose:
		held := decimal.NewFromFloat(b.position.Size)
		if held.Sign() <= 0 {
			logger.Debugf("[backtest] bar %d 无持仓却收到 %s 意图", idx, intent.Kind)
			return reject()
		}
		qty := held
		action := "close"
		if intent.Kind == strategy.IntentSell && intent.Size > 0 {
			qty = decimal.NewFromFloat(intent.Size)
			if qty.GreaterThan(held) {
				qty = held
			}
			if qty.LessThan(held) {
				action = "sell"
			}
		}
		execPrice := price.Mul(decimal.NewFromInt(1).Sub(b.slippage))
		proceeds := qty.Mul(execPrice)
		fee := proceeds.Mul(b.commission)
		b.cash = b.cash.Add(proceeds).Sub(fee)

		entry := decimal.NewFromFloat(b.position.EntryPrice)
		pnlDec := execPrice.Sub(entry).Mul(qty).Sub(fee)
		pnl, _ := pnlDec.Float64()

		remaining, _ := held.Sub(qty).Float64()
		if remaining < 1e-12 {
			remaining = 0
		}
		qtyF, _ := qty.Float64()
		priceF, _ := execPrice.Float64()
		trade := s.newTrade(b, idx, candle, action, priceF, qtyF, fee, pnl, intent.Reason)
		return trade, pnl, strategy.Fill{BarIndex: idx, Kind: intent.Kind, Price: priceF, Size: qtyF, Remaining: remaining}

	default:
		return reject()
	}
}

func (s *Simulator) newTrade(b *brokerState, idx int, candle market.Candle, action string, price, qty float64, fee decimal.Decimal, pnl float64, reason string) *Trade {
	feeF, _ := fee.Float64()
	t := &Trade{
		ID:          b.nextTrade,
		TS:          candle.CloseTime,
		BarIndex:    idx,
		Action:      action,
		Price:       price,
		Quantity:    qty,
		Notional:    price * qty,
		Fee:         feeF,
		RealizedPnL: pnl,
		Reason:      reason,
	}
	b.nextTrade++
	return t
}

func equityValues(points []EquityPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Equity
	}
	return out
}
