package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"intraday/internal/logger"
	"intraday/internal/store"
	"intraday/internal/store/model"
	"intraday/internal/types"
)

// corruptTrade 标记无法解码的持仓，会话校验时会因此被隔离。
const corruptTrade types.TradeStatus = "CORRUPT"

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func sessionToModel(s types.Session) (model.SessionModel, error) {
	var current datatypes.JSON
	if s.CurrentTrade != nil {
		b, err := json.Marshal(s.CurrentTrade)
		if err != nil {
			return model.SessionModel{}, fmt.Errorf("encode current trade: %w", err)
		}
		current = datatypes.JSON(b)
	}
	return model.SessionModel{
		ID:                s.ID,
		Instrument:        s.Instrument,
		Exchange:          s.Exchange,
		Mode:              string(s.Mode),
		InstrumentKind:    string(s.InstrumentKind),
		LotSize:           s.LotSize,
		Status:            string(s.Status),
		StopReason:        string(s.StopReason),
		Capital:           s.Capital,
		DailyPnL:          s.DailyPnL,
		MaxTradesAllowed:  s.MaxTradesAllowed,
		DailyLossLimit:    s.DailyLossLimit,
		CutoffTime:        s.CutoffTime,
		TradesToday:       s.TradesToday,
		TradingDay:        s.TradingDay,
		CurrentStrategyID: s.CurrentStrategyID,
		CurrentTrade:      current,
		LastAdvisoryAt:    unixMilli(s.LastAdvisoryAt),
		CurrentHourBlock:  unixMilli(s.CurrentHourBlock),
		HourlyTradeCount:  s.HourlyTradeCount,
		MaxTradesThisHour: s.MaxTradesThisHour,
		FrequencyMode:     string(s.FrequencyMode),
		CreatedAtUnix:     unixMilli(s.CreatedAt),
		UpdatedAtUnix:     unixMilli(s.UpdatedAt),
	}, nil
}

func sessionFromModel(m model.SessionModel) types.Session {
	s := types.Session{
		ID:                m.ID,
		Instrument:        m.Instrument,
		Exchange:          m.Exchange,
		Mode:              types.Mode(m.Mode),
		InstrumentKind:    types.InstrumentKind(m.InstrumentKind),
		LotSize:           m.LotSize,
		Status:            types.SessionStatus(m.Status),
		StopReason:        types.StopReason(m.StopReason),
		Capital:           m.Capital,
		DailyPnL:          m.DailyPnL,
		MaxTradesAllowed:  m.MaxTradesAllowed,
		DailyLossLimit:    m.DailyLossLimit,
		CutoffTime:        m.CutoffTime,
		TradesToday:       m.TradesToday,
		TradingDay:        m.TradingDay,
		CurrentStrategyID: m.CurrentStrategyID,
		LastAdvisoryAt:    fromMilli(m.LastAdvisoryAt),
		CurrentHourBlock:  fromMilli(m.CurrentHourBlock),
		HourlyTradeCount:  m.HourlyTradeCount,
		MaxTradesThisHour: m.MaxTradesThisHour,
		FrequencyMode:     types.FrequencyMode(m.FrequencyMode),
		CreatedAt:         fromMilli(m.CreatedAtUnix),
		UpdatedAt:         fromMilli(m.UpdatedAtUnix),
	}
	if raw := string(m.CurrentTrade); raw != "" && raw != "null" {
		var t types.Trade
		if err := json.Unmarshal(m.CurrentTrade, &t); err != nil {
			logger.Warnf("Store: session %s current trade undecodable: %v", m.ID, err)
			t = types.Trade{SessionID: m.ID, Status: corruptTrade}
		}
		s.CurrentTrade = &t
	}
	return s
}

func tradeToModel(t types.Trade) model.TradeModel {
	return model.TradeModel{
		ID:            t.ID,
		SessionID:     t.SessionID,
		StrategyID:    t.StrategyID,
		Symbol:        t.Symbol,
		Exchange:      t.Exchange,
		Direction:     string(t.Direction),
		Mode:          string(t.Mode),
		EntryPrice:    t.EntryPrice,
		StopLoss:      t.StopLoss,
		Target:        t.Target,
		Quantity:      t.Quantity,
		Lots:          t.Lots,
		EntryTime:     unixMilli(t.EntryTime),
		ExitTime:      unixMilli(t.ExitTime),
		ExitPrice:     t.ExitPrice,
		ExitReason:    string(t.ExitReason),
		PnL:           t.PnL,
		Status:        string(t.Status),
		BrokerOrderID: t.BrokerOrderID,
	}
}

func tradeFromModel(m model.TradeModel) types.Trade {
	return types.Trade{
		ID:            m.ID,
		SessionID:     m.SessionID,
		StrategyID:    m.StrategyID,
		Symbol:        m.Symbol,
		Exchange:      m.Exchange,
		Direction:     types.Direction(m.Direction),
		Mode:          types.Mode(m.Mode),
		EntryPrice:    m.EntryPrice,
		StopLoss:      m.StopLoss,
		Target:        m.Target,
		Quantity:      m.Quantity,
		Lots:          m.Lots,
		EntryTime:     fromMilli(m.EntryTime),
		ExitTime:      fromMilli(m.ExitTime),
		ExitPrice:     m.ExitPrice,
		ExitReason:    types.ExitReason(m.ExitReason),
		PnL:           m.PnL,
		Status:        types.TradeStatus(m.Status),
		BrokerOrderID: m.BrokerOrderID,
	}
}

func intentToModel(in types.TradeIntent) model.IntentModel {
	return model.IntentModel{
		ID:            in.ID,
		SessionID:     in.SessionID,
		Kind:          string(in.Kind),
		TradeID:       in.TradeID,
		StrategyID:    in.StrategyID,
		Symbol:        in.Symbol,
		Exchange:      in.Exchange,
		Direction:     string(in.Direction),
		Price:         in.Price,
		StopLoss:      in.StopLoss,
		Target:        in.Target,
		Quantity:      in.Quantity,
		Lots:          in.Lots,
		ExitReason:    string(in.ExitReason),
		Status:        string(in.Status),
		Error:         in.Error,
		CreatedAtUnix: unixMilli(in.CreatedAt),
		UpdatedAtUnix: unixMilli(in.UpdatedAt),
	}
}

func intentFromModel(m model.IntentModel) types.TradeIntent {
	return types.TradeIntent{
		ID:         m.ID,
		SessionID:  m.SessionID,
		Kind:       types.IntentKind(m.Kind),
		TradeID:    m.TradeID,
		StrategyID: m.StrategyID,
		Symbol:     m.Symbol,
		Exchange:   m.Exchange,
		Direction:  types.Direction(m.Direction),
		Price:      m.Price,
		StopLoss:   m.StopLoss,
		Target:     m.Target,
		Quantity:   m.Quantity,
		Lots:       m.Lots,
		ExitReason: types.ExitReason(m.ExitReason),
		Status:     types.IntentStatus(m.Status),
		Error:      m.Error,
		CreatedAt:  fromMilli(m.CreatedAtUnix),
		UpdatedAt:  fromMilli(m.UpdatedAtUnix),
	}
}

func backtestToModel(r store.BacktestRun) model.BacktestRunModel {
	report := r.Report
	if len(report) == 0 {
		report = mustJSON(nil)
	}
	return model.BacktestRunModel{
		ID:             r.ID,
		SessionID:      r.SessionID,
		Instrument:     r.Instrument,
		FromUnix:       unixMilli(r.From),
		ToUnix:         unixMilli(r.To),
		Days:           r.Days,
		InitialCapital: r.InitialCapital,
		TotalPnL:       r.TotalPnL,
		Trades:         r.Trades,
		WinRate:        r.WinRate,
		MaxDrawdown:    r.MaxDrawdown,
		Report:         datatypes.JSON(report),
		CreatedAtUnix:  unixMilli(r.CreatedAt),
	}
}

func backtestFromModel(m model.BacktestRunModel) store.BacktestRun {
	var report []byte
	if raw := string(m.Report); raw != "" && raw != "null" {
		report = []byte(m.Report)
	}
	return store.BacktestRun{
		ID:             m.ID,
		SessionID:      m.SessionID,
		Instrument:     m.Instrument,
		From:           fromMilli(m.FromUnix),
		To:             fromMilli(m.ToUnix),
		Days:           m.Days,
		InitialCapital: m.InitialCapital,
		TotalPnL:       m.TotalPnL,
		Trades:         m.Trades,
		WinRate:        m.WinRate,
		MaxDrawdown:    m.MaxDrawdown,
		Report:         report,
		CreatedAt:      fromMilli(m.CreatedAtUnix),
	}
}
