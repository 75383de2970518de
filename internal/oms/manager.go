package oms

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/quantbot/gotrader/internal/bus"
	"github.com/quantbot/gotrader/internal/connector"
	"github.com/quantbot/gotrader/internal/domain"
	"github.com/quantbot/gotrader/internal/events"
	"github.com/quantbot/gotrader/internal/metrics"
)

var log = logrus.WithField("component", "oms")

// ConnectorResolver 按 venue 名称解析连接器（由 connector.Registry 实现）
type ConnectorResolver interface {
	Get(venue string) (connector.Connector, bool)
}

// Publisher 向总线回发事件的最小接口
// 订单管理器的 handler 在分发循环内执行，必须使用非阻塞发布
type Publisher interface {
	TryPublish(e events.Event) error
}

// Manager 订单生命周期管理器
//
// 独占维护活跃订单表：
// - 订单记录只在收到风控放行的 OrderCreate 时创建
// - 只被匹配 clientOrderId 的 OrderStatus 回报修改
// - 到达终态立即移除，且移除必须发生在对应 Fill 事件发布之后
// - 同一 clientOrderId 任意时刻至多一条活跃记录
type Manager struct {
	resolver ConnectorResolver
	pub      Publisher

	mu   sync.RWMutex
	live map[string]*domain.Order
}

// NewManager 创建订单生命周期管理器
func NewManager(resolver ConnectorResolver, pub Publisher) *Manager {
	return &Manager{
		resolver: resolver,
		pub:      pub,
		live:     make(map[string]*domain.Order),
	}
}

// Register 注册事件 handler（必须在总线启动前调用）
func (m *Manager) Register(b *bus.Bus) error {
	if err := b.Register(events.KindOrderCreate, "oms.on_order_create", m.OnOrderCreate); err != nil {
		return err
	}
	if err := b.Register(events.KindOrderStatus, "oms.on_order_status", m.OnOrderStatus); err != nil {
		return err
	}
	return b.Register(events.KindOrderFailed, "oms.on_order_failed", m.OnOrderFailed)
}

// LiveCount 返回活跃订单数量
func (m *Manager) LiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// LiveOrder 返回指定 clientOrderId 的活跃订单副本
func (m *Manager) LiveOrder(clientOrderID string) (domain.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.live[clientOrderID]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// OnOrderCreate 处理风控放行后的下单事件
// 生成 clientOrderId → 解析 venue → 插入 Created 记录 → 发往连接器 → 置为 Sent
// Sent 的触发点是"已发往连接器"，而非交易所确认（确认以后续事件形式到达）
func (m *Manager) OnOrderCreate(ctx context.Context, e events.Event) error {
	oc, ok := e.Payload.(events.OrderCreateEvent)
	if !ok {
		return errors.Errorf("OrderCreate 事件载荷类型错误: %T", e.Payload)
	}
	sig := oc.Signal

	conn, found := m.resolver.Get(sig.Venue)
	if !found {
		// 本地拒绝：不建记录、不发网络请求
		log.Warnf("信号被拒绝：venue %q 未加载 (strategy=%s symbol=%s)", sig.Venue, sig.StrategyID, sig.Symbol)
		return nil
	}

	req := domain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		StrategyID:    sig.StrategyID,
		Venue:         sig.Venue,
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Type:          sig.Type,
		Quantity:      sig.Quantity,
		Price:         sig.Price,
	}

	order := &domain.Order{
		ClientOrderID: req.ClientOrderID,
		StrategyID:    req.StrategyID,
		Venue:         req.Venue,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		Price:         req.Price,
		State:         domain.OrderStateCreated,
		CreatedAt:     time.Now(),
	}
	m.mu.Lock()
	m.live[order.ClientOrderID] = order
	m.mu.Unlock()

	if err := conn.PlaceOrder(ctx, req); err != nil {
		// 连接器入参校验失败或已关闭：记录不保留
		m.remove(order.ClientOrderID)
		log.Warnf("下单派发失败: clientOrderId=%s err=%v", order.ClientOrderID, err)
		return nil
	}

	m.mu.Lock()
	order.State = domain.OrderStateSent
	m.mu.Unlock()
	log.Infof("订单已发出: clientOrderId=%s %s %s %s qty=%s price=%s",
		order.ClientOrderID, order.Venue, order.Symbol, order.Side,
		order.Quantity.String(), order.Price.String())
	return nil
}

// OnOrderStatus 处理交易所订单回报
// 按 clientOrderId 关联；无匹配记录的回报（重复/迟到/旧会话）记录后忽略
func (m *Manager) OnOrderStatus(ctx context.Context, e events.Event) error {
	st, ok := e.Payload.(events.OrderStatusEvent)
	if !ok {
		return errors.Errorf("OrderStatus 事件载荷类型错误: %T", e.Payload)
	}

	m.mu.Lock()
	order, found := m.live[st.ClientOrderID]
	if !found {
		m.mu.Unlock()
		log.Warnf("忽略无匹配记录的订单回报: clientOrderId=%s status=%s", st.ClientOrderID, st.Status)
		return nil
	}
	if st.VenueOrderID != "" {
		order.VenueOrderID = st.VenueOrderID
	}
	snapshot := *order
	m.mu.Unlock()

	// 有成交量 → 先发布 Fill，再更新状态/移除记录（顺序是硬性约束）
	if st.LastFillQty.IsPositive() {
		m.emitFill(snapshot, st)
	}

	next, terminal := mapStatus(st.Status)
	if next != "" {
		m.mu.Lock()
		order.State = next
		if st.LastFillQty.IsPositive() {
			order.FilledQty = order.FilledQty.Add(st.LastFillQty)
		}
		m.mu.Unlock()
		log.Infof("订单状态更新: clientOrderId=%s state=%s", st.ClientOrderID, next)
	} else {
		log.Warnf("未识别的订单状态码: clientOrderId=%s status=%q", st.ClientOrderID, st.Status)
	}

	if terminal {
		m.remove(st.ClientOrderID)
		log.Infof("订单已关闭: clientOrderId=%s 终态=%s", st.ClientOrderID, next)
	}
	return nil
}

// OnOrderFailed 处理下单失败事件：关闭对应记录
func (m *Manager) OnOrderFailed(ctx context.Context, e events.Event) error {
	of, ok := e.Payload.(events.OrderFailedEvent)
	if !ok {
		return errors.Errorf("OrderFailed 事件载荷类型错误: %T", e.Payload)
	}
	id := of.Request.ClientOrderID
	m.mu.Lock()
	_, found := m.live[id]
	m.mu.Unlock()
	if !found {
		log.Warnf("忽略无匹配记录的下单失败事件: clientOrderId=%s", id)
		return nil
	}
	m.remove(id)
	log.Warnf("订单失败已关闭: clientOrderId=%s reason=%s", id, of.Reason)
	return nil
}

// emitFill 发布成交事件（每条带成交量的回报恰好产生一条 Fill）
// 拿到的是持锁拷贝的订单快照，避免读到并发修改中的记录
func (m *Manager) emitFill(order domain.Order, st events.OrderStatusEvent) {
	fill := events.FillEvent{
		Venue:         order.Venue,
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		VenueOrderID:  order.VenueOrderID,
		StrategyID:    order.StrategyID,
		Side:          order.Side,
		Price:         st.LastFillPrice,
		Quantity:      st.LastFillQty,
		Timestamp:     st.Timestamp,
	}
	if err := m.pub.TryPublish(events.New(events.KindFill, fill)); err != nil {
		log.Errorf("Fill 事件发布失败: clientOrderId=%s err=%v", order.ClientOrderID, err)
		return
	}
	metrics.FillsEmitted.Add(1)
	log.Infof("成交: clientOrderId=%s price=%s qty=%s",
		order.ClientOrderID, st.LastFillPrice.String(), st.LastFillQty.String())
}

func (m *Manager) remove(clientOrderID string) {
	m.mu.Lock()
	delete(m.live, clientOrderID)
	m.mu.Unlock()
}

// mapStatus 把交易所原生状态码映射到内部订单状态
// 返回 (状态, 是否终态)；未识别的状态码返回 ("", false)
func mapStatus(status string) (domain.OrderState, bool) {
	switch status {
	case "NEW":
		return domain.OrderStateSent, false
	case "PARTIALLY_FILLED":
		return domain.OrderStatePartiallyFilled, false
	case "FILLED":
		return domain.OrderStateFilled, true
	case "CANCELED":
		return domain.OrderStateCanceled, true
	case "REJECTED":
		return domain.OrderStateRejected, true
	case "EXPIRED":
		return domain.OrderStateExpired, true
	}
	return "", false
}
