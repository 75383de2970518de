package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderState 订单状态
// 状态机: Created → Sent → {PartiallyFilled ⇄ PartiallyFilled, Filled, Canceled, Rejected, Expired}
type OrderState string

const (
	OrderStateCreated         OrderState = "CREATED"          // 已创建（尚未发往交易所）
	OrderStateSent            OrderState = "SENT"             // 已发往交易所
	OrderStatePartiallyFilled OrderState = "PARTIALLY_FILLED" // 部分成交
	OrderStateFilled          OrderState = "FILLED"           // 已成交
	OrderStateCanceled        OrderState = "CANCELED"         // 已取消
	OrderStateRejected        OrderState = "REJECTED"         // 已拒绝
	OrderStateExpired         OrderState = "EXPIRED"          // 已过期
)

// IsTerminal 检查状态是否为终态（终态订单从活跃订单表中移除）
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCanceled, OrderStateRejected, OrderStateExpired:
		return true
	}
	return false
}

// OrderRequest 下单请求（由策略信号产生，经风控确认后发往交易所）
type OrderRequest struct {
	ClientOrderID string          // 客户端订单 ID（由本系统生成，交易所回报靠它关联）
	StrategyID    string          // 来源策略
	Venue         string          // 交易所名称
	Symbol        string          // 交易对
	Side          Side            // 方向
	Type          OrderType       // 类型
	Quantity      decimal.Decimal // 数量
	Price         decimal.Decimal // 价格（限价单必填，市价单为零值）
}

// Order 订单领域模型
// 由订单生命周期管理器独占维护；到达终态后即从活跃表移除
type Order struct {
	ClientOrderID string          // 客户端订单 ID
	VenueOrderID  string          // 交易所订单 ID（回报后补齐）
	StrategyID    string          // 来源策略
	Venue         string          // 交易所名称
	Symbol        string          // 交易对
	Side          Side            // 方向
	Type          OrderType       // 类型
	Quantity      decimal.Decimal // 原始数量（requested size）
	FilledQty     decimal.Decimal // 已成交数量（partial fill 累计）
	Price         decimal.Decimal // 订单价格
	State         OrderState      // 订单状态
	CreatedAt     time.Time       // 创建时间
}

// IsLive 检查订单是否仍在活跃表中（非终态）
func (o *Order) IsLive() bool {
	return o != nil && !o.State.IsTerminal()
}
