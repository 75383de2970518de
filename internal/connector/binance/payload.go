package binance

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/quantbot/gotrader/internal/domain"
	"github.com/quantbot/gotrader/internal/events"
)

// combinedMessage 组合流消息外层 {"stream": "...", "data": {...}}
type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tradePayload <symbol>@trade 流载荷
type tradePayload struct {
	Symbol   string `json:"s"`
	Price    string `json:"p"`
	Quantity string `json:"q"`
	TradeTS  int64  `json:"T"`
}

// depthPayload <symbol>@depth 流载荷
type depthPayload struct {
	Bids    [][]string `json:"b"`
	Asks    [][]string `json:"a"`
	EventTS int64      `json:"E"`
}

// orderAckPayload 下单 REST 响应载荷（部分字段）
type orderAckPayload struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	AvgPrice      string `json:"avgPrice"`
	ExecutedQty   string `json:"executedQty"`
	UpdateTime    int64  `json:"updateTime"`
}

// venueError 交易所错误响应 {"code": -xxxx, "msg": "..."}
type venueError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// parseMessage 把组合流消息翻译为规范化事件
// 返回 (event, true) 表示有可发布事件；未知流类型返回 (zero, false)
func parseMessage(venue string, raw []byte) (events.Event, bool, error) {
	var msg combinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return events.Event{}, false, errors.Wrap(err, "解析组合流消息")
	}
	if msg.Stream == "" {
		// 订阅确认等控制消息没有 stream 字段，直接忽略
		return events.Event{}, false, nil
	}

	switch {
	case strings.Contains(msg.Stream, "@trade"):
		return parseTrade(venue, msg.Data)
	case strings.Contains(msg.Stream, "@depth"):
		return parseDepth(venue, msg.Stream, msg.Data)
	default:
		return events.Event{}, false, nil
	}
}

func parseTrade(venue string, data json.RawMessage) (events.Event, bool, error) {
	var p tradePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return events.Event{}, false, errors.Wrap(err, "解析 trade 载荷")
	}
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return events.Event{}, false, errors.Wrapf(err, "trade price %q", p.Price)
	}
	qty, err := decimal.NewFromString(p.Quantity)
	if err != nil {
		return events.Event{}, false, errors.Wrapf(err, "trade quantity %q", p.Quantity)
	}
	return events.New(events.KindTick, events.TickEvent{
		Venue:     venue,
		Symbol:    p.Symbol,
		Price:     price,
		Quantity:  qty,
		Timestamp: p.TradeTS,
	}), true, nil
}

func parseDepth(venue, stream string, data json.RawMessage) (events.Event, bool, error) {
	var p depthPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return events.Event{}, false, errors.Wrap(err, "解析 depth 载荷")
	}
	bids, err := parseLevels(p.Bids)
	if err != nil {
		return events.Event{}, false, errors.Wrap(err, "解析 bids")
	}
	asks, err := parseLevels(p.Asks)
	if err != nil {
		return events.Event{}, false, errors.Wrap(err, "解析 asks")
	}
	// depth 流名形如 btcusdt@depth5@100ms，symbol 取 @ 之前的部分并转大写
	symbol := strings.ToUpper(strings.SplitN(stream, "@", 2)[0])
	return events.New(events.KindOrderBookUpdate, events.OrderBookEvent{
		Venue:     venue,
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: p.EventTS,
	}), true, nil
}

func parseLevels(raw [][]string) ([]domain.BookLevel, error) {
	levels := make([]domain.BookLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, errors.Errorf("档位字段不足: %v", pair)
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, errors.Wrapf(err, "档位价格 %q", pair[0])
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, errors.Wrapf(err, "档位数量 %q", pair[1])
		}
		levels = append(levels, domain.BookLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

// parseOrderAck 把下单响应翻译为规范化 OrderStatus 事件
func parseOrderAck(venue string, body []byte) (events.OrderStatusEvent, error) {
	var ack orderAckPayload
	if err := json.Unmarshal(body, &ack); err != nil {
		return events.OrderStatusEvent{}, errors.Wrap(err, "解析下单响应")
	}
	if ack.ClientOrderID == "" {
		return events.OrderStatusEvent{}, errors.New("下单响应缺少 clientOrderId")
	}
	fillPrice := decimal.Zero
	if ack.AvgPrice != "" {
		if d, err := decimal.NewFromString(ack.AvgPrice); err == nil {
			fillPrice = d
		}
	}
	fillQty := decimal.Zero
	if ack.ExecutedQty != "" {
		if d, err := decimal.NewFromString(ack.ExecutedQty); err == nil {
			fillQty = d
		}
	}
	return events.OrderStatusEvent{
		Venue:         venue,
		Symbol:        ack.Symbol,
		ClientOrderID: ack.ClientOrderID,
		VenueOrderID:  formatVenueOrderID(ack.OrderID),
		Status:        ack.Status,
		Side:          domain.Side(ack.Side),
		LastFillPrice: fillPrice,
		LastFillQty:   fillQty,
		Timestamp:     ack.UpdateTime,
	}, nil
}

func formatVenueOrderID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
