package risk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantbot/gotrader/internal/domain"
	"github.com/quantbot/gotrader/internal/events"
	"github.com/quantbot/gotrader/pkg/config"
)

type fakeCounter struct{ n int }

func (f *fakeCounter) LiveCount() int { return f.n }

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) TryPublish(e events.Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) approved() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Kind == events.KindOrderCreate {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T, counter *fakeCounter, pub *capturePublisher) *Manager {
	t.Helper()
	m, err := NewManager(config.RiskConfig{
		MaxOrderQuantity: "1.0",
		MaxLiveOrders:    3,
		FailureTripCount: 2,
		ResetInterval:    time.Minute,
	}, counter, pub)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}
	return m
}

func signal(qty string) events.Event {
	return events.New(events.KindSignal, events.SignalEvent{
		StrategyID: "vwap-test",
		Venue:      "binance",
		Symbol:     "BTCUSDT",
		Side:       domain.SideBuy,
		Type:       domain.OrderTypeLimit,
		Quantity:   decimal.RequireFromString(qty),
		Price:      decimal.RequireFromString("100"),
	})
}

func TestManager_ApprovedSignalForwardedAsOrderCreate(t *testing.T) {
	pub := &capturePublisher{}
	m := newTestManager(t, &fakeCounter{n: 0}, pub)

	if err := m.OnSignal(context.Background(), signal("0.5")); err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	if pub.approved() != 1 {
		t.Fatalf("expected 1 OrderCreate, got %d", pub.approved())
	}

	oc := pub.events[0].Payload.(events.OrderCreateEvent)
	if oc.Signal.StrategyID != "vwap-test" || !oc.Signal.Quantity.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("forwarded signal mismatch: %+v", oc.Signal)
	}
}

func TestManager_VetoOversizedOrder(t *testing.T) {
	pub := &capturePublisher{}
	m := newTestManager(t, &fakeCounter{n: 0}, pub)

	if err := m.OnSignal(context.Background(), signal("1.5")); err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	if pub.approved() != 0 {
		t.Fatalf("oversized order must be vetoed")
	}
}

func TestManager_VetoNonPositiveQuantity(t *testing.T) {
	pub := &capturePublisher{}
	m := newTestManager(t, &fakeCounter{n: 0}, pub)

	if err := m.OnSignal(context.Background(), signal("0")); err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	if pub.approved() != 0 {
		t.Fatalf("zero quantity must be vetoed")
	}
}

func TestManager_VetoAtLiveOrderCap(t *testing.T) {
	pub := &capturePublisher{}
	m := newTestManager(t, &fakeCounter{n: 3}, pub)

	if err := m.OnSignal(context.Background(), signal("0.5")); err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	if pub.approved() != 0 {
		t.Fatalf("signal at live order cap must be vetoed")
	}
}

func TestManager_BreakerTripsOnConsecutiveFailures(t *testing.T) {
	pub := &capturePublisher{}
	m := newTestManager(t, &fakeCounter{n: 0}, pub)

	failed := events.New(events.KindOrderFailed, events.OrderFailedEvent{Reason: "rejected"})
	_ = m.OnOrderFailed(context.Background(), failed)
	_ = m.OnOrderFailed(context.Background(), failed)

	// 连续失败达到阈值：熔断，信号被否决
	if err := m.OnSignal(context.Background(), signal("0.5")); err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	if pub.approved() != 0 {
		t.Fatalf("signal during open breaker must be vetoed")
	}

	// 手动恢复后放行
	m.Breaker().Resume()
	if err := m.OnSignal(context.Background(), signal("0.5")); err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	if pub.approved() != 1 {
		t.Fatalf("expected signal approved after breaker resume, got %d", pub.approved())
	}
}

func TestManager_SuccessResetsFailureCount(t *testing.T) {
	pub := &capturePublisher{}
	m := newTestManager(t, &fakeCounter{n: 0}, pub)

	failed := events.New(events.KindOrderFailed, events.OrderFailedEvent{Reason: "timeout"})
	_ = m.OnOrderFailed(context.Background(), failed)

	// 一次受理成功清空计数，随后一次失败不应触发熔断（阈值 2）
	status := events.New(events.KindOrderStatus, events.OrderStatusEvent{ClientOrderID: "x", Status: "NEW"})
	_ = m.OnOrderStatus(context.Background(), status)
	_ = m.OnOrderFailed(context.Background(), failed)

	if err := m.OnSignal(context.Background(), signal("0.5")); err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	if pub.approved() != 1 {
		t.Fatalf("expected signal approved, got %d", pub.approved())
	}
}

func TestCircuitBreaker_AutoResumeAfterInterval(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxConsecutiveFailures: 1,
		ResetInterval:          10 * time.Millisecond,
	})
	cb.RecordFailure()
	if err := cb.AllowTrading(); err == nil {
		t.Fatalf("expected breaker open")
	}
	time.Sleep(20 * time.Millisecond)
	if err := cb.AllowTrading(); err != nil {
		t.Fatalf("expected auto resume after interval, got %v", err)
	}
}

func TestNewManager_InvalidMaxQuantity(t *testing.T) {
	_, err := NewManager(config.RiskConfig{MaxOrderQuantity: "not-a-number"}, &fakeCounter{}, &capturePublisher{})
	if err == nil {
		t.Fatalf("expected error for malformed maxOrderQuantity")
	}
}
