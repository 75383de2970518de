package strategy

import (
	"testing"

	"github.com/quantbot/gotrader/internal/bus"
	"github.com/quantbot/gotrader/internal/events"
	"github.com/quantbot/gotrader/pkg/config"
)

type nopPublisher struct{}

func (nopPublisher) TryPublish(e events.Event) error { return nil }

type stubStrategy struct {
	id         string
	registered bool
}

func (s *stubStrategy) ID() string { return s.id }

func (s *stubStrategy) Register(b *bus.Bus) error {
	s.registered = true
	return nil
}

func init() {
	Register("stub", func(instanceID string, params map[string]interface{}, pub Publisher) (Strategy, error) {
		return &stubStrategy{id: instanceID}, nil
	})
}

func TestDecodeParams(t *testing.T) {
	type cfg struct {
		Venue  string `json:"venue"`
		Period int    `json:"period"`
		Amount string `json:"amount"`
	}
	params := map[string]interface{}{
		"venue":  "binance",
		"period": 15,
		"amount": "0.5",
		"extra":  "ignored",
	}

	var out cfg
	if err := DecodeParams(params, &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.Venue != "binance" || out.Period != 15 || out.Amount != "0.5" {
		t.Fatalf("decoded config mismatch: %+v", out)
	}
}

func TestBuildEngine(t *testing.T) {
	cfg := &config.Config{
		Strategies: []config.StrategyConfig{
			{Name: "a", Strategy: "stub", Enabled: true, Params: map[string]interface{}{}},
			{Name: "b", Strategy: "stub", Enabled: false},               // 未启用，跳过
			{Name: "c", Strategy: "does-not-exist", Enabled: true},      // 未注册类型，跳过
		},
	}

	e := BuildEngine(cfg, nopPublisher{})
	if len(e.Strategies()) != 1 {
		t.Fatalf("expected 1 strategy loaded, got %d", len(e.Strategies()))
	}
	if e.Strategies()[0].ID() != "a" {
		t.Fatalf("unexpected strategy id: %s", e.Strategies()[0].ID())
	}
}

func TestEngine_RegisterAll(t *testing.T) {
	cfg := &config.Config{
		Strategies: []config.StrategyConfig{
			{Name: "a", Strategy: "stub", Enabled: true, Params: map[string]interface{}{}},
			{Name: "b", Strategy: "stub", Enabled: true, Params: map[string]interface{}{}},
		},
	}
	e := BuildEngine(cfg, nopPublisher{})

	b := bus.New(8)
	if err := e.Register(b); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	for _, s := range e.Strategies() {
		if !s.(*stubStrategy).registered {
			t.Fatalf("strategy %s was not registered", s.ID())
		}
	}
}
