package binance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/quantbot/gotrader/internal/domain"
	"github.com/quantbot/gotrader/internal/events"
	"github.com/quantbot/gotrader/internal/metrics"
)

const orderEndpoint = "/fapi/v1/order"

// PlaceOrder 发送签名下单请求
// HTTP 调用在独立 goroutine 中执行，绝不阻塞事件分发循环；
// 结果（受理/拒单/网络失败）一律通过事件发布，调用方只观察事件通道
func (c *Connector) PlaceOrder(ctx context.Context, req domain.OrderRequest) error {
	if req.ClientOrderID == "" {
		return errors.New("下单请求缺少 clientOrderId")
	}
	if req.Type == domain.OrderTypeLimit && req.Price.IsZero() {
		return errors.New("限价单缺少价格")
	}
	if c.closed.Load() {
		return errors.Errorf("venue %s 连接器已关闭", c.name)
	}

	c.wg.Add(1)
	go c.submitOrder(ctx, req)
	return nil
}

// submitOrder 实际的签名 + HTTP 提交
func (c *Connector) submitOrder(ctx context.Context, req domain.OrderRequest) {
	defer c.wg.Done()

	if err := c.limiter.Wait(ctx); err != nil {
		c.publishFailed(ctx, req, "下单限速等待被取消: "+err.Error())
		return
	}

	params := buildOrderParams(req, time.Now().UnixMilli(), c.cfg.RecvWindowMS)
	query := signedQuery(params, c.cfg.APISecret)

	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetQueryString(query).
		Post(orderEndpoint)
	if err != nil {
		c.publishFailed(ctx, req, "下单请求失败: "+err.Error())
		return
	}

	body := resp.Body()
	if resp.IsError() {
		detail := venueErrorDetail(body)
		c.log.Errorf("交易所拒单: clientOrderId=%s status=%d detail=%s", req.ClientOrderID, resp.StatusCode(), detail)
		c.publishFailed(ctx, req, detail)
		return
	}

	status, err := parseOrderAck(c.name, body)
	if err != nil {
		c.publishFailed(ctx, req, "解析下单响应失败: "+err.Error())
		return
	}

	metrics.OrdersPlaced.Add(1)
	c.log.Infof("下单已受理: clientOrderId=%s venueOrderId=%s status=%s",
		status.ClientOrderID, status.VenueOrderID, status.Status)
	if err := c.pub.Publish(ctx, events.New(events.KindOrderStatus, status)); err != nil {
		c.log.Errorf("OrderStatus 事件发布失败: clientOrderId=%s err=%v", req.ClientOrderID, err)
	}
}

// publishFailed 发布 OrderFailed 事件（携带原始请求与失败原因）
func (c *Connector) publishFailed(ctx context.Context, req domain.OrderRequest, reason string) {
	metrics.OrdersFailed.Add(1)
	e := events.New(events.KindOrderFailed, events.OrderFailedEvent{
		Request: req,
		Reason:  reason,
	})
	if err := c.pub.Publish(ctx, e); err != nil {
		c.log.Errorf("OrderFailed 事件发布失败: clientOrderId=%s reason=%s err=%v",
			req.ClientOrderID, reason, err)
	}
}

func venueErrorDetail(body []byte) string {
	var ve venueError
	if err := json.Unmarshal(body, &ve); err == nil && ve.Msg != "" {
		return ve.Msg
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return string(body)
}
