package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantbot/gotrader/internal/domain"
)

// Kind 事件类型（封闭枚举）
type Kind string

const (
	KindTick            Kind = "TICK"              // 逐笔成交行情
	KindOrderBookUpdate Kind = "ORDER_BOOK_UPDATE" // 订单簿更新
	KindSignal          Kind = "SIGNAL"            // 策略信号（尚未经过风控）
	KindOrderCreate     Kind = "ORDER_CREATE"      // 风控放行后的下单请求
	KindOrderStatus     Kind = "ORDER_STATUS"      // 交易所订单回报
	KindFill            Kind = "FILL"              // 成交事件
	KindOrderFailed     Kind = "ORDER_FAILED"      // 下单失败事件
)

// Valid 检查是否为已知事件类型
func (k Kind) Valid() bool {
	switch k {
	case KindTick, KindOrderBookUpdate, KindSignal, KindOrderCreate,
		KindOrderStatus, KindFill, KindOrderFailed:
		return true
	}
	return false
}

// TickEvent 逐笔成交事件
type TickEvent struct {
	Venue     string
	Symbol    string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Timestamp int64 // 毫秒时间戳
}

// OrderBookEvent 订单簿更新事件
type OrderBookEvent struct {
	Venue     string
	Symbol    string
	Bids      []domain.BookLevel
	Asks      []domain.BookLevel
	Timestamp int64 // 毫秒时间戳（可选，0 表示缺失）
}

// SignalEvent 策略信号事件
type SignalEvent struct {
	StrategyID string
	Venue      string
	Symbol     string
	Side       domain.Side
	Type       domain.OrderType
	Quantity   decimal.Decimal
	Price      decimal.Decimal // 限价单必填
}

// OrderCreateEvent 风控放行后的下单事件
// 风控管理器消费 SignalEvent，校验通过后以此事件转发给订单管理器
type OrderCreateEvent struct {
	Signal SignalEvent
}

// OrderStatusEvent 交易所订单回报事件（规范化后的最小字段集）
type OrderStatusEvent struct {
	Venue         string
	Symbol        string
	ClientOrderID string
	VenueOrderID  string
	Status        string          // 交易所原生状态码（NEW/PARTIALLY_FILLED/FILLED/CANCELED/REJECTED/EXPIRED）
	Side          domain.Side
	LastFillPrice decimal.Decimal // 最近一次成交价格
	LastFillQty   decimal.Decimal // 最近一次成交数量
	Timestamp     int64           // 毫秒时间戳
}

// FillEvent 成交事件
type FillEvent struct {
	Venue         string
	Symbol        string
	ClientOrderID string
	VenueOrderID  string
	StrategyID    string
	Side          domain.Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Timestamp     int64 // 毫秒时间戳
}

// OrderFailedEvent 下单失败事件（网络错误、签名错误或交易所拒单）
type OrderFailedEvent struct {
	Request domain.OrderRequest
	Reason  string
}

// Event 总线上传递的事件单元（一经发布即不可变）
type Event struct {
	Kind      Kind
	Payload   interface{}
	CreatedAt time.Time
}

// New 创建事件
func New(kind Kind, payload interface{}) Event {
	return Event{
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}
