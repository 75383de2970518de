package strategy

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/quantbot/gotrader/internal/bus"
	"github.com/quantbot/gotrader/internal/events"
	"github.com/quantbot/gotrader/pkg/config"
)

var log = logrus.WithField("component", "strategy")

// Publisher 策略向总线发布信号的接口
// 策略 handler 在分发循环内执行，必须使用非阻塞发布
type Publisher interface {
	TryPublish(e events.Event) error
}

// Strategy 策略实例接口
// 策略通过 Register 把自己的 handler 挂到总线上（总线启动前）
type Strategy interface {
	ID() string
	Register(b *bus.Bus) error
}

// Factory 策略构造函数
// params 为配置文件中的原始参数表，由策略自行解码
type Factory func(instanceID string, params map[string]interface{}, pub Publisher) (Strategy, error)

var (
	factories   = make(map[string]Factory)
	factoriesMu sync.RWMutex
)

// Register 注册策略类型（静态注册表）
// 策略包在 init() 中调用；取代按名字的动态加载
func Register(typeTag string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, exists := factories[typeTag]; exists {
		panic(fmt.Errorf("strategy %s already registered", typeTag))
	}
	factories[typeTag] = factory
}

func getFactory(typeTag string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[typeTag]
	return f, ok
}

// DecodeParams 把原始参数表解码到类型化配置
// bbgo main 风格：JSON 往返绑定，新增策略只需要在配置 struct 上定义 json tag
func DecodeParams(params map[string]interface{}, out interface{}) error {
	b, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "序列化策略参数")
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errors.Wrap(err, "绑定策略参数")
	}
	return nil
}

// Engine 策略引擎：按配置构建启用的策略实例
type Engine struct {
	strategies []Strategy
}

// BuildEngine 从配置构建全部启用的策略
// 未注册的策略类型只记录并跳过，不影响其他策略加载
func BuildEngine(cfg *config.Config, pub Publisher) *Engine {
	e := &Engine{}
	for _, sc := range cfg.Strategies {
		if !sc.Enabled {
			continue
		}
		factory, ok := getFactory(sc.Strategy)
		if !ok {
			log.Errorf("未注册的策略类型 %q，跳过策略 %s", sc.Strategy, sc.Name)
			continue
		}
		inst, err := factory(sc.Name, sc.Params, pub)
		if err != nil {
			log.Errorf("构建策略 %s 失败: %v", sc.Name, err)
			continue
		}
		e.strategies = append(e.strategies, inst)
		log.Infof("已加载策略 %s (type=%s)", sc.Name, sc.Strategy)
	}
	return e
}

// Register 把全部策略的 handler 注册到总线（必须在总线启动前）
func (e *Engine) Register(b *bus.Bus) error {
	for _, s := range e.strategies {
		if err := s.Register(b); err != nil {
			return errors.Wrapf(err, "注册策略 %s", s.ID())
		}
		log.Infof("已注册策略 handler: %s", s.ID())
	}
	return nil
}

// Strategies 返回全部已加载策略（观测/测试用）
func (e *Engine) Strategies() []Strategy {
	return e.strategies
}
