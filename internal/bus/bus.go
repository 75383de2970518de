package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/quantbot/gotrader/internal/events"
	"github.com/quantbot/gotrader/internal/metrics"
)

var log = logrus.WithField("component", "bus")

var (
	// ErrStarted 总线启动后禁止再注册 handler（注册与分发并发会竞争）
	ErrStarted = errors.New("bus already started")
	// ErrClosed 总线已停止，拒绝新事件
	ErrClosed = errors.New("bus closed")
	// ErrQueueFull 队列已满（TryPublish 专用）
	ErrQueueFull = errors.New("event queue full")
)

// HandlerFunc 事件处理函数
// 在分发循环中串行执行，不得长时间阻塞
type HandlerFunc func(ctx context.Context, e events.Event) error

type registration struct {
	name string
	fn   HandlerFunc
}

// Bus 中央事件总线
//
// 保证:
// - 事件按 FIFO 顺序分发，单一分发循环，无并行 worker
// - 同一事件类型的 handler 按注册顺序依次调用，前一个完成后才调用下一个
// - handler 报错或 panic 只记录日志，不中断分发循环
// - Stop 之后先清空已入队事件再退出（避免 OrderStatus 丢失导致漏发 Fill）
type Bus struct {
	queue    chan events.Event
	handlers map[events.Kind][]registration

	started atomic.Bool
	closed  atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopMu  sync.Mutex
}

// New 创建事件总线，queueSize 为有界队列容量
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Bus{
		queue:    make(chan events.Event, queueSize),
		handlers: make(map[events.Kind][]registration),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Register 为指定事件类型注册 handler
// 只能在 Start 之前调用；同一类型的 handler 按注册顺序调用
func (b *Bus) Register(kind events.Kind, name string, fn HandlerFunc) error {
	if b.started.Load() {
		return ErrStarted
	}
	if !kind.Valid() {
		return errors.Errorf("register %q: unknown event kind %q", name, kind)
	}
	if fn == nil {
		return errors.Errorf("register %q: nil handler", name)
	}
	b.handlers[kind] = append(b.handlers[kind], registration{name: name, fn: fn})
	log.Debugf("已注册 handler: kind=%s name=%s order=%d", kind, name, len(b.handlers[kind]))
	return nil
}

// Publish 发布事件（阻塞式入队）
// 队列满时阻塞调用者，对上游（connector 读取循环）形成天然背压
// 入队即返回，不等待分发
func (b *Bus) Publish(ctx context.Context, e events.Event) error {
	if b.closed.Load() {
		return ErrClosed
	}
	select {
	case b.queue <- e:
		metrics.EventsPublished.Add(1)
		return nil
	case <-b.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish 发布事件（非阻塞）
// 供分发循环内部的 handler 使用：handler 在循环内再发事件时绝不能
// 阻塞在自己的队列上，队列满时返回 ErrQueueFull 由调用方记录
// Stop 之后分发循环清空队列期间仍可发布（否则 drain 中产生的 Fill 会丢），
// 循环退出后才拒绝
func (b *Bus) TryPublish(e events.Event) error {
	select {
	case <-b.doneCh:
		return ErrClosed
	default:
	}
	select {
	case b.queue <- e:
		metrics.EventsPublished.Add(1)
		return nil
	default:
		metrics.EventsDropped.Add(1)
		return ErrQueueFull
	}
}

// Start 启动分发循环（后台 goroutine），进程生命周期内只启动一次
func (b *Bus) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	go b.run(ctx)
	log.Info("事件总线已启动")
	return nil
}

// Stop 停止总线：拒绝新事件，清空已入队事件后退出
// 幂等，可重复调用
func (b *Bus) Stop() {
	b.stopMu.Lock()
	defer b.stopMu.Unlock()
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	if b.started.Load() {
		<-b.doneCh
	}
}

// run 分发主循环
func (b *Bus) run(ctx context.Context) {
	defer close(b.doneCh)
	for {
		select {
		case <-ctx.Done():
			log.Infof("分发循环退出: %v", ctx.Err())
			return
		case <-b.stopCh:
			b.drain(ctx)
			log.Info("事件总线已停止")
			return
		case e := <-b.queue:
			b.dispatch(ctx, e)
		}
	}
}

// drain 停止后清空剩余事件（in-flight handler 不会被硬中断）
func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case e := <-b.queue:
			b.dispatch(ctx, e)
		default:
			return
		}
	}
}

// dispatch 将事件依次交给该类型的所有 handler（严格注册顺序）
func (b *Bus) dispatch(ctx context.Context, e events.Event) {
	if !e.Kind.Valid() {
		metrics.EventsDropped.Add(1)
		log.Warnf("丢弃未知类型事件: kind=%s", e.Kind)
		return
	}
	regs, ok := b.handlers[e.Kind]
	if !ok || len(regs) == 0 {
		log.Debugf("事件无订阅者: kind=%s", e.Kind)
		return
	}
	for _, reg := range regs {
		b.invoke(ctx, reg, e)
	}
	metrics.EventsDispatched.Add(1)
}

// invoke 调用单个 handler，隔离 panic 和错误
func (b *Bus) invoke(ctx context.Context, reg registration, e events.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerErrors.Add(1)
			log.Errorf("handler panic: kind=%s handler=%s panic=%v", e.Kind, reg.name, r)
		}
	}()
	if err := reg.fn(ctx, e); err != nil {
		metrics.HandlerErrors.Add(1)
		log.Errorf("handler 执行失败: kind=%s handler=%s err=%v", e.Kind, reg.name, err)
	}
}
