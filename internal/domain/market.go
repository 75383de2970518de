package domain

import "github.com/shopspring/decimal"

// BookLevel 订单簿单档（价格 + 数量）
type BookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// StreamKind 行情流类型
type StreamKind string

const (
	StreamTrade StreamKind = "trade" // 逐笔成交
	StreamDepth StreamKind = "depth" // 订单簿深度
)

// StreamID 订阅流标识（symbol + 流类型）
// 连接器重连后必须按原样恢复订阅集合，不多不少
type StreamID struct {
	Symbol string
	Kind   StreamKind
}

// ConnState 连接器状态机
type ConnState int32

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
	ConnReconnecting
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnReconnecting:
		return "reconnecting"
	}
	return "unknown"
}
