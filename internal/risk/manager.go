package risk

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantbot/gotrader/internal/bus"
	"github.com/quantbot/gotrader/internal/events"
	"github.com/quantbot/gotrader/internal/metrics"
	"github.com/quantbot/gotrader/pkg/config"
)

var log = logrus.WithField("component", "risk")

// LiveOrderCounter 活跃订单数视图（由订单管理器实现）
type LiveOrderCounter interface {
	LiveCount() int
}

// Publisher 放行事件发布接口（分发循环内使用非阻塞发布）
type Publisher interface {
	TryPublish(e events.Event) error
}

// Manager 风控闸门
//
// 订单管理器不直接消费 Signal：风控校验通过后把请求以 OrderCreate
// 事件转发，订单管理器只订阅 OrderCreate。否决路径显式存在，
// 不依赖 handler 注册顺序这种隐式契约。
type Manager struct {
	pub     Publisher
	counter LiveOrderCounter
	breaker *CircuitBreaker

	maxOrderQty   decimal.Decimal // 零值表示不限制
	maxLiveOrders int
}

// NewManager 创建风控管理器
func NewManager(cfg config.RiskConfig, counter LiveOrderCounter, pub Publisher) (*Manager, error) {
	maxQty := decimal.Zero
	if cfg.MaxOrderQuantity != "" {
		d, err := decimal.NewFromString(cfg.MaxOrderQuantity)
		if err != nil {
			return nil, errors.Wrapf(err, "解析 risk.maxOrderQuantity %q", cfg.MaxOrderQuantity)
		}
		maxQty = d
	}
	return &Manager{
		pub:     pub,
		counter: counter,
		breaker: NewCircuitBreaker(CircuitBreakerConfig{
			MaxConsecutiveFailures: int64(cfg.FailureTripCount),
			ResetInterval:          cfg.ResetInterval,
		}),
		maxOrderQty:   maxQty,
		maxLiveOrders: cfg.MaxLiveOrders,
	}, nil
}

// Breaker 返回内部断路器（观测/测试用）
func (m *Manager) Breaker() *CircuitBreaker { return m.breaker }

// Register 注册事件 handler（必须在总线启动前调用）
func (m *Manager) Register(b *bus.Bus) error {
	if err := b.Register(events.KindSignal, "risk.on_signal", m.OnSignal); err != nil {
		return err
	}
	// 跟踪下单结果以驱动断路器
	if err := b.Register(events.KindOrderFailed, "risk.on_order_failed", m.OnOrderFailed); err != nil {
		return err
	}
	return b.Register(events.KindOrderStatus, "risk.on_order_status", m.OnOrderStatus)
}

// OnSignal 校验策略信号，放行则转发为 OrderCreate 事件
func (m *Manager) OnSignal(ctx context.Context, e events.Event) error {
	sig, ok := e.Payload.(events.SignalEvent)
	if !ok {
		return errors.Errorf("Signal 事件载荷类型错误: %T", e.Payload)
	}

	if reason := m.veto(sig); reason != "" {
		metrics.SignalsVetoed.Add(1)
		log.Warnf("信号被否决: strategy=%s %s %s qty=%s 原因=%s",
			sig.StrategyID, sig.Symbol, sig.Side, sig.Quantity.String(), reason)
		return nil
	}

	approved := events.New(events.KindOrderCreate, events.OrderCreateEvent{Signal: sig})
	if err := m.pub.TryPublish(approved); err != nil {
		return errors.Wrap(err, "转发 OrderCreate 事件")
	}
	log.Debugf("信号放行: strategy=%s %s %s qty=%s", sig.StrategyID, sig.Symbol, sig.Side, sig.Quantity.String())
	return nil
}

// veto 返回否决原因，空串表示放行
func (m *Manager) veto(sig events.SignalEvent) string {
	if err := m.breaker.AllowTrading(); err != nil {
		return "熔断中"
	}
	if !sig.Quantity.IsPositive() {
		return "数量必须为正"
	}
	if sig.Type == "" || sig.Side == "" {
		return "缺少方向或类型"
	}
	if !m.maxOrderQty.IsZero() && sig.Quantity.GreaterThan(m.maxOrderQty) {
		return "超过单笔数量上限 " + m.maxOrderQty.String()
	}
	if m.maxLiveOrders > 0 && m.counter.LiveCount() >= m.maxLiveOrders {
		return "活跃订单数已达上限"
	}
	return ""
}

// OnOrderFailed 下单失败计入断路器
func (m *Manager) OnOrderFailed(ctx context.Context, e events.Event) error {
	if _, ok := e.Payload.(events.OrderFailedEvent); !ok {
		return errors.Errorf("OrderFailed 事件载荷类型错误: %T", e.Payload)
	}
	m.breaker.RecordFailure()
	return nil
}

// OnOrderStatus 受理成功清空连续失败计数
func (m *Manager) OnOrderStatus(ctx context.Context, e events.Event) error {
	if _, ok := e.Payload.(events.OrderStatusEvent); !ok {
		return errors.Errorf("OrderStatus 事件载荷类型错误: %T", e.Payload)
	}
	m.breaker.RecordSuccess()
	return nil
}
