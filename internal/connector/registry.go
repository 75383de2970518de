package connector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/quantbot/gotrader/internal/domain"
	"github.com/quantbot/gotrader/pkg/config"
)

var log = logrus.WithField("component", "connector_registry")

// Factory 连接器构造函数
// streams 是该 venue 需要订阅的行情流集合（由策略配置推导）
type Factory func(venue string, cfg config.VenueConfig, streams []domain.StreamID, pub EventPublisher) (Connector, error)

var (
	factories   = make(map[string]Factory)
	factoriesMu sync.RWMutex
)

// RegisterConnector 注册连接器类型（静态注册表，连接器包在 init() 中调用）
// 取代按名字动态加载：类型标签 → 构造函数
func RegisterConnector(typeTag string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, exists := factories[typeTag]; exists {
		panic(fmt.Errorf("connector %s already registered", typeTag))
	}
	factories[typeTag] = factory
}

func getFactory(typeTag string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[typeTag]
	return f, ok
}

// Registry 管理全部已加载的连接器实例，按 venue 名称索引
type Registry struct {
	venues map[string]Connector
}

// BuildRegistry 根据配置构建所有连接器
// 单个 venue 解析失败只记录并跳过，不影响其余 venue 的加载
func BuildRegistry(cfg *config.Config, pub EventPublisher) *Registry {
	r := &Registry{venues: make(map[string]Connector)}
	for name, vc := range cfg.Venues {
		factory, ok := getFactory(vc.Connector)
		if !ok {
			log.Errorf("未知的连接器类型 %q，跳过 venue %s", vc.Connector, name)
			continue
		}
		streams := DeriveStreams(name, cfg.Strategies)
		conn, err := factory(name, vc, streams, pub)
		if err != nil {
			log.Errorf("构建 venue %s 连接器失败: %v", name, err)
			continue
		}
		r.venues[name] = conn
		log.Infof("已加载 venue %s (connector=%s, streams=%d)", name, vc.Connector, len(streams))
	}
	return r
}

// DeriveStreams 扫描策略配置，推导 venue 需要订阅的行情流集合
// 每个匹配的 symbol 订阅 trade 和 depth 两种流，集合去重
// symbol 统一转为大写规范形式，与行情帧中交易所回报的写法一致
func DeriveStreams(venue string, strategies []config.StrategyConfig) []domain.StreamID {
	set := make(map[domain.StreamID]struct{})
	for _, s := range strategies {
		if !s.Enabled || s.Venue() != venue {
			continue
		}
		symbol := strings.ToUpper(s.Symbol())
		if symbol == "" {
			continue
		}
		set[domain.StreamID{Symbol: symbol, Kind: domain.StreamTrade}] = struct{}{}
		set[domain.StreamID{Symbol: symbol, Kind: domain.StreamDepth}] = struct{}{}
	}
	out := make([]domain.StreamID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	// 固定顺序，保证重连时订阅串一致
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Get 按 venue 名称查找连接器
func (r *Registry) Get(venue string) (Connector, bool) {
	c, ok := r.venues[venue]
	return c, ok
}

// Names 返回全部已加载 venue 名称（固定顺序）
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.venues))
	for name := range r.venues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConnectAll 连接全部 venue，单个失败不影响其他 venue
func (r *Registry) ConnectAll(ctx context.Context) {
	for _, name := range r.Names() {
		conn := r.venues[name]
		if err := conn.Connect(ctx); err != nil {
			log.Errorf("连接 venue %s 失败: %v", name, err)
			continue
		}
		log.Infof("venue %s 连接已建立", name)
	}
}

// DisconnectAll 断开全部 venue，单个失败不影响其他 venue
func (r *Registry) DisconnectAll() {
	for _, name := range r.Names() {
		conn := r.venues[name]
		if err := conn.Disconnect(); err != nil {
			log.Errorf("断开 venue %s 失败: %v", name, err)
			continue
		}
		log.Infof("venue %s 已断开", name)
	}
}
