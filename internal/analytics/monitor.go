package analytics

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/quantbot/gotrader/internal/bus"
	"github.com/quantbot/gotrader/internal/events"
	"github.com/quantbot/gotrader/pkg/config"
)

var log = logrus.WithField("component", "analytics")

const createFillsTable = `
CREATE TABLE IF NOT EXISTS fills (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_order_id TEXT NOT NULL,
	venue_order_id TEXT,
	strategy_id TEXT,
	venue TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	price TEXT NOT NULL,
	quantity TEXT NOT NULL,
	ts INTEGER NOT NULL
);`

// Stats 单个策略的绩效计数
type Stats struct {
	Signals   int64
	Fills     int64
	FilledQty decimal.Decimal
	Notional  decimal.Decimal // Σ price*qty
}

// Monitor 绩效监控
// 订阅 Fill/Signal 维护每策略计数；配置了 dbPath 时把每笔成交落到 sqlite
type Monitor struct {
	db *sql.DB

	mu    sync.RWMutex
	stats map[string]*Stats
}

// NewMonitor 创建绩效监控；dbPath 为空则只保留内存计数
func NewMonitor(cfg config.AnalyticsConfig) (*Monitor, error) {
	m := &Monitor{stats: make(map[string]*Stats)}
	if cfg.DBPath == "" {
		return m, nil
	}
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(createFillsTable); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "建表 fills")
	}
	m.db = db
	log.Infof("成交记录将写入 %s", cfg.DBPath)
	return m, nil
}

// Register 注册事件 handler（必须在总线启动前调用）
func (m *Monitor) Register(b *bus.Bus) error {
	if err := b.Register(events.KindSignal, "analytics.on_signal", m.OnSignal); err != nil {
		return err
	}
	return b.Register(events.KindFill, "analytics.on_fill", m.OnFill)
}

// Close 关闭底层数据库
func (m *Monitor) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// OnSignal 统计信号数
func (m *Monitor) OnSignal(ctx context.Context, e events.Event) error {
	sig, ok := e.Payload.(events.SignalEvent)
	if !ok {
		return errors.Errorf("Signal 事件载荷类型错误: %T", e.Payload)
	}
	m.mu.Lock()
	m.statsFor(sig.StrategyID).Signals++
	m.mu.Unlock()
	return nil
}

// OnFill 统计成交并落库
func (m *Monitor) OnFill(ctx context.Context, e events.Event) error {
	fill, ok := e.Payload.(events.FillEvent)
	if !ok {
		return errors.Errorf("Fill 事件载荷类型错误: %T", e.Payload)
	}

	m.mu.Lock()
	st := m.statsFor(fill.StrategyID)
	st.Fills++
	st.FilledQty = st.FilledQty.Add(fill.Quantity)
	st.Notional = st.Notional.Add(fill.Price.Mul(fill.Quantity))
	m.mu.Unlock()

	if m.db != nil {
		_, err := m.db.ExecContext(ctx,
			`INSERT INTO fills (client_order_id, venue_order_id, strategy_id, venue, symbol, side, price, quantity, ts)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fill.ClientOrderID, fill.VenueOrderID, fill.StrategyID, fill.Venue, fill.Symbol,
			string(fill.Side), fill.Price.String(), fill.Quantity.String(), fill.Timestamp)
		if err != nil {
			// 落库失败只记录，不影响分发
			log.Errorf("成交落库失败: clientOrderId=%s err=%v", fill.ClientOrderID, err)
		}
	}
	return nil
}

// Snapshot 返回每策略绩效计数的副本
func (m *Monitor) Snapshot() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.stats))
	for k, v := range m.stats {
		out[k] = *v
	}
	return out
}

// statsFor 调用方必须持有 m.mu
func (m *Monitor) statsFor(strategyID string) *Stats {
	st, ok := m.stats[strategyID]
	if !ok {
		st = &Stats{FilledQty: decimal.Zero, Notional: decimal.Zero}
		m.stats[strategyID] = st
	}
	return st
}
