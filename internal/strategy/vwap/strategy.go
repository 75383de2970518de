package vwap

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantbot/gotrader/internal/bus"
	"github.com/quantbot/gotrader/internal/domain"
	"github.com/quantbot/gotrader/internal/events"
	"github.com/quantbot/gotrader/internal/strategy"
)

// StrategyType 静态注册表中的类型标签
const StrategyType = "vwap"

func init() {
	strategy.Register(StrategyType, New)
}

// Config VWAP 策略参数
type Config struct {
	Venue                 string `json:"venue"`
	Symbol                string `json:"symbol"`
	VWAPPeriodMinutes     int    `json:"vwapPeriodMinutes"`     // VWAP 滚动窗口（分钟），默认 15
	OrderAmount           string `json:"orderAmount"`           // 单笔下单数量（decimal 字符串）
	TargetSpreadPct       string `json:"targetSpreadPct"`       // 目标价差比例（如 0.01 表示低于 VWAP 1% 买入）
	StartTime             string `json:"startTime"`             // 交易窗口开始 HH:MM（UTC，可选）
	EndTime               string `json:"endTime"`               // 交易窗口结束 HH:MM（UTC，可选）
	SignalCooldownSeconds int    `json:"signalCooldownSeconds"` // 信号最小间隔（秒），默认 30
}

type tickPoint struct {
	at    time.Time
	price decimal.Decimal
	qty   decimal.Decimal
}

// Strategy VWAP 执行策略
// 维护滚动窗口内成交的量价累计，价格显著低于 VWAP 时发出买入信号
type Strategy struct {
	id  string
	pub strategy.Publisher
	log *logrus.Entry

	venue       string
	symbol      string
	vwapPeriod  time.Duration
	orderAmount decimal.Decimal
	spreadPct   decimal.Decimal
	cooldown    time.Duration

	startTime, endTime *clockTime

	// 状态（只在分发循环内修改，无需加锁）
	window       []tickPoint
	sumPV        decimal.Decimal // Σ price*qty
	sumQ         decimal.Decimal // Σ qty
	active       bool
	lastSignalAt time.Time

	nowFn func() time.Time // 可注入时钟（测试用）
}

// New 构建 VWAP 策略实例（strategy.Factory）
func New(instanceID string, params map[string]interface{}, pub strategy.Publisher) (strategy.Strategy, error) {
	var cfg Config
	if err := strategy.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.Venue == "" || cfg.Symbol == "" {
		return nil, errors.New("vwap 策略缺少 venue/symbol")
	}
	if cfg.VWAPPeriodMinutes <= 0 {
		cfg.VWAPPeriodMinutes = 15
	}
	if cfg.SignalCooldownSeconds <= 0 {
		cfg.SignalCooldownSeconds = 30
	}
	amount, err := decimal.NewFromString(cfg.OrderAmount)
	if err != nil {
		return nil, errors.Wrapf(err, "解析 orderAmount %q", cfg.OrderAmount)
	}
	if !amount.IsPositive() {
		return nil, errors.New("orderAmount 必须为正")
	}
	spread, err := decimal.NewFromString(cfg.TargetSpreadPct)
	if err != nil {
		return nil, errors.Wrapf(err, "解析 targetSpreadPct %q", cfg.TargetSpreadPct)
	}

	s := &Strategy{
		id:          instanceID,
		pub:         pub,
		log:         logrus.WithField("component", "vwap."+instanceID),
		venue:       cfg.Venue,
		symbol:      strings.ToUpper(cfg.Symbol), // 行情帧携带交易所的大写 symbol，构建时统一规范形式
		vwapPeriod:  time.Duration(cfg.VWAPPeriodMinutes) * time.Minute,
		orderAmount: amount,
		spreadPct:   spread,
		cooldown:    time.Duration(cfg.SignalCooldownSeconds) * time.Second,
		sumPV:       decimal.Zero,
		sumQ:        decimal.Zero,
		nowFn:       time.Now,
	}
	if s.startTime, err = parseClockTime(cfg.StartTime); err != nil {
		return nil, errors.Wrapf(err, "解析 startTime %q", cfg.StartTime)
	}
	if s.endTime, err = parseClockTime(cfg.EndTime); err != nil {
		return nil, errors.Wrapf(err, "解析 endTime %q", cfg.EndTime)
	}
	return s, nil
}

// ID 返回策略实例名
func (s *Strategy) ID() string { return s.id }

// Register 注册 Tick handler
func (s *Strategy) Register(b *bus.Bus) error {
	return b.Register(events.KindTick, "strategy."+s.id+".on_tick", s.OnTick)
}

// OnTick 处理逐笔成交行情
func (s *Strategy) OnTick(ctx context.Context, e events.Event) error {
	tick, ok := e.Payload.(events.TickEvent)
	if !ok {
		return errors.Errorf("Tick 事件载荷类型错误: %T", e.Payload)
	}
	if tick.Venue != s.venue || tick.Symbol != s.symbol {
		return nil
	}

	now := s.nowFn()
	if !s.withinTradingWindow(now) {
		if s.active {
			s.log.Info("离开交易窗口，策略进入待机")
			s.active = false
		}
		return nil
	}
	if !s.active {
		s.log.Info("进入交易窗口，策略激活")
		s.active = true
	}

	s.push(now, tick.Price, tick.Quantity)
	s.trim(now)

	if s.sumQ.IsZero() {
		return nil
	}
	vwap := s.sumPV.Div(s.sumQ)
	s.log.Debugf("VWAP=%s last=%s", vwap.StringFixed(4), tick.Price.String())

	s.decide(now, vwap, tick.Price)
	return nil
}

// push 追加窗口数据并更新累计量
func (s *Strategy) push(at time.Time, price, qty decimal.Decimal) {
	s.window = append(s.window, tickPoint{at: at, price: price, qty: qty})
	s.sumPV = s.sumPV.Add(price.Mul(qty))
	s.sumQ = s.sumQ.Add(qty)
}

// trim 剔除窗口之外的旧数据
func (s *Strategy) trim(now time.Time) {
	cutoff := now.Add(-s.vwapPeriod)
	i := 0
	for ; i < len(s.window); i++ {
		if s.window[i].at.After(cutoff) {
			break
		}
		s.sumPV = s.sumPV.Sub(s.window[i].price.Mul(s.window[i].qty))
		s.sumQ = s.sumQ.Sub(s.window[i].qty)
	}
	if i > 0 {
		s.window = s.window[i:]
	}
}

// decide 价格低于目标买入带时发出买入信号
func (s *Strategy) decide(now time.Time, vwap, price decimal.Decimal) {
	targetBuy := vwap.Mul(decimal.NewFromInt(1).Sub(s.spreadPct))
	if price.GreaterThanOrEqual(targetBuy) {
		return
	}
	if now.Sub(s.lastSignalAt) < s.cooldown {
		return
	}

	sig := events.SignalEvent{
		StrategyID: s.id,
		Venue:      s.venue,
		Symbol:     s.symbol,
		Side:       domain.SideBuy,
		Type:       domain.OrderTypeLimit,
		Quantity:   s.orderAmount,
		Price:      price, // 以当前价挂单，保证激进成交
	}
	if err := s.pub.TryPublish(events.New(events.KindSignal, sig)); err != nil {
		s.log.Errorf("信号发布失败: %v", err)
		return
	}
	s.lastSignalAt = now
	s.log.Infof("📉 价格 %s 低于目标买入价 %s（VWAP=%s），发出买入信号 qty=%s",
		price.String(), targetBuy.StringFixed(4), vwap.StringFixed(4), s.orderAmount.String())
}

// clockTime 一天内的时刻 HH:MM
type clockTime struct {
	hour, minute int
}

func parseClockTime(v string) (*clockTime, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return nil, err
	}
	return &clockTime{hour: t.Hour(), minute: t.Minute()}, nil
}

// withinTradingWindow 检查当前 UTC 时间是否在交易窗口内
// 未配置窗口时恒为 true
func (s *Strategy) withinTradingWindow(now time.Time) bool {
	if s.startTime == nil || s.endTime == nil {
		return true
	}
	utc := now.UTC()
	cur := utc.Hour()*60 + utc.Minute()
	start := s.startTime.hour*60 + s.startTime.minute
	end := s.endTime.hour*60 + s.endTime.minute
	return cur >= start && cur <= end
}
