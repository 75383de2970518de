package connector

import (
	"context"

	"github.com/quantbot/gotrader/internal/domain"
	"github.com/quantbot/gotrader/internal/events"
)

// EventPublisher 连接器向总线发布事件的最小接口
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Connector 交易所连接器能力接口
// 每个接入的交易所实现一份；连接器自持网络会话与重连状态机
type Connector interface {
	// Name 返回 venue 名称
	Name() string

	// Connect 建立行情流连接并启动监听任务
	// 初次握手失败返回错误；成功后由监听任务把交易所原生消息
	// 翻译为规范化 Tick/OrderBookUpdate 事件发布到总线
	Connect(ctx context.Context) error

	// Disconnect 优雅关闭行情流与下单会话，幂等
	Disconnect() error

	// PlaceOrder 发送签名下单请求
	// 交易所受理 → 发布 OrderStatus 事件；拒单或网络/签名失败 → 发布
	// OrderFailed 事件。除传参错误外不向调用方抛出交易所错误，
	// 订单管理器只通过事件这一条通道观察结果
	PlaceOrder(ctx context.Context, req domain.OrderRequest) error

	// State 返回当前连接状态（观测用）
	State() domain.ConnState
}
