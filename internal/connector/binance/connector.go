package binance

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/quantbot/gotrader/internal/connector"
	"github.com/quantbot/gotrader/internal/domain"
	"github.com/quantbot/gotrader/internal/metrics"
	"github.com/quantbot/gotrader/pkg/config"
	"github.com/quantbot/gotrader/pkg/ratelimit"
	"github.com/quantbot/gotrader/pkg/sigchan"
)

// ConnectorType 静态注册表中的类型标签
const ConnectorType = "binance"

func init() {
	connector.RegisterConnector(ConnectorType, New)
}

const (
	defaultInitialBackoff = 2 * time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// Connector Binance 连接器
// 行情走 WebSocket 组合流，下单走签名 REST
// 自持重连状态机：读取循环出错 → Reconnecting → 退避后以原订阅集合重连
type Connector struct {
	name    string
	cfg     config.VenueConfig
	pub     connector.EventPublisher
	streams []domain.StreamID
	log     *logrus.Entry

	rest    *resty.Client
	limiter ratelimit.RateLimiter

	state      atomic.Int32
	generation atomic.Int64 // 会话代数，每次成功连接递增；旧代数的帧一律丢弃
	closed     atomic.Bool
	wake       *sigchan.Chan // 打断退避等待（Disconnect 时）

	mu sync.Mutex // 保护 ws
	ws *websocket.Conn

	wg sync.WaitGroup

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// New 构建 Binance 连接器（connector.Factory）
func New(venue string, cfg config.VenueConfig, streams []domain.StreamID, pub connector.EventPublisher) (connector.Connector, error) {
	if cfg.WSURL == "" {
		return nil, errors.Errorf("venue %s 缺少 wsURL", venue)
	}
	if cfg.BaseURL == "" {
		return nil, errors.Errorf("venue %s 缺少 baseURL", venue)
	}
	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(15 * time.Second).
		SetHeader("X-MBX-APIKEY", cfg.APIKey)

	return &Connector{
		name:           venue,
		cfg:            cfg,
		pub:            pub,
		streams:        streams,
		log:            logrus.WithField("component", "binance."+venue),
		rest:           rest,
		limiter:        ratelimit.NewTokenBucket(cfg.OrderRatePerSec, cfg.OrderRatePerSec),
		wake:           sigchan.New(1),
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}, nil
}

// Name 返回 venue 名称
func (c *Connector) Name() string { return c.name }

// State 返回当前连接状态
func (c *Connector) State() domain.ConnState {
	return domain.ConnState(c.state.Load())
}

// Generation 返回当前会话代数（观测/测试用）
func (c *Connector) Generation() int64 { return c.generation.Load() }

// SubscribedStreams 返回当前持有的订阅集合（重连后必须与故障前一致）
func (c *Connector) SubscribedStreams() []domain.StreamID {
	out := make([]domain.StreamID, len(c.streams))
	copy(out, c.streams)
	return out
}

// streamURL 由订阅集合构建组合流 URL
// 集合在构建时已排序，同一集合生成的 URL 字符串稳定
func (c *Connector) streamURL() string {
	names := make([]string, 0, len(c.streams))
	for _, s := range c.streams {
		symbol := strings.ToLower(s.Symbol)
		switch s.Kind {
		case domain.StreamTrade:
			names = append(names, symbol+"@trade")
		case domain.StreamDepth:
			names = append(names, symbol+"@depth5@100ms")
		}
	}
	return c.cfg.WSURL + "?streams=" + strings.Join(names, "/")
}

// Connect 建立行情流连接并启动监听任务
// 初次握手失败直接返回错误（不进入重连），由调用方决定是否放弃该 venue
func (c *Connector) Connect(ctx context.Context) error {
	if len(c.streams) == 0 {
		c.log.Warnf("没有需要订阅的行情流，跳过连接")
		return nil
	}
	c.state.Store(int32(domain.ConnConnecting))

	conn, err := c.dial(ctx)
	if err != nil {
		c.state.Store(int32(domain.ConnDisconnected))
		return errors.Wrapf(err, "venue %s 行情流握手失败", c.name)
	}

	gen := c.generation.Add(1)
	c.setWS(conn)
	c.state.Store(int32(domain.ConnConnected))
	c.log.Infof("行情流已连接: streams=%d generation=%d", len(c.streams), gen)

	c.wg.Add(1)
	go c.listen(ctx, conn, gen)
	return nil
}

func (c *Connector) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.streamURL(), nil)
	return conn, err
}

func (c *Connector) setWS(conn *websocket.Conn) {
	c.mu.Lock()
	c.ws = conn
	c.mu.Unlock()
}

// listen 监听任务：把交易所原生帧翻译为规范化事件发布到总线
// 绑定创建时的会话代数；一旦代数被更新，本任务读到的帧全部作废
func (c *Connector) listen(ctx context.Context, conn *websocket.Conn, gen int64) {
	defer c.wg.Done()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if c.generation.Load() != gen {
				// 会话已被更新的连接取代，本循环静默退出
				return
			}
			c.log.Warnf("行情流中断: %v，进入重连", err)
			c.wg.Add(1)
			go c.reconnectLoop(ctx)
			return
		}

		if c.closed.Load() || c.generation.Load() != gen {
			// 迟到的旧会话帧，丢弃
			metrics.StaleFramesDropped.Add(1)
			continue
		}

		e, ok, err := parseMessage(c.name, raw)
		if err != nil {
			c.log.Warnf("丢弃无法解析的行情帧: %v", err)
			continue
		}
		if !ok {
			continue
		}
		// 阻塞式发布：队列满时阻塞读取循环，对 socket 形成背压
		if err := c.pub.Publish(ctx, e); err != nil {
			c.log.Warnf("行情事件发布失败: %v", err)
			return
		}
	}
}

// reconnectLoop 重连循环：指数退避，直到成功或 Disconnect
// 重连成功后以故障前持有的同一订阅集合恢复订阅（URL 由 streams 重建）
func (c *Connector) reconnectLoop(ctx context.Context) {
	defer c.wg.Done()
	c.state.Store(int32(domain.ConnReconnecting))
	backoff := c.initialBackoff

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake.C():
			// Disconnect 打断退避
			if c.closed.Load() {
				return
			}
		case <-time.After(backoff):
		}
		if c.closed.Load() {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.log.Warnf("重连失败: %v，%s 后重试", err, backoff)
			backoff = minDuration(backoff*2, c.maxBackoff)
			continue
		}
		if c.closed.Load() {
			// Disconnect 与重连竞争时以关闭为准
			_ = conn.Close()
			return
		}

		gen := c.generation.Add(1)
		c.setWS(conn)
		c.state.Store(int32(domain.ConnConnected))
		metrics.ConnectorReconnects.Add(1)
		c.log.Infof("重连成功: generation=%d streams=%d", gen, len(c.streams))

		c.wg.Add(1)
		go c.listen(ctx, conn, gen)
		return
	}
}

// Disconnect 优雅关闭，幂等
func (c *Connector) Disconnect() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.wake.Emit()

	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}
	c.state.Store(int32(domain.ConnDisconnected))
	c.wg.Wait()
	c.log.Info("连接器已关闭")
	return nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
