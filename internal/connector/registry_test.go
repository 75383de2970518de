package connector

import (
	"context"
	"testing"

	"github.com/quantbot/gotrader/internal/domain"
	"github.com/quantbot/gotrader/internal/events"
	"github.com/quantbot/gotrader/pkg/config"
)

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, e events.Event) error { return nil }

// stubConnector 记录生命周期调用
type stubConnector struct {
	name         string
	streams      []domain.StreamID
	connected    bool
	disconnected bool
}

func (s *stubConnector) Name() string                                              { return s.name }
func (s *stubConnector) Connect(ctx context.Context) error                         { s.connected = true; return nil }
func (s *stubConnector) Disconnect() error                                         { s.disconnected = true; return nil }
func (s *stubConnector) PlaceOrder(ctx context.Context, req domain.OrderRequest) error { return nil }
func (s *stubConnector) State() domain.ConnState                                   { return domain.ConnConnected }

func init() {
	RegisterConnector("stub", func(venue string, cfg config.VenueConfig, streams []domain.StreamID, pub EventPublisher) (Connector, error) {
		return &stubConnector{name: venue, streams: streams}, nil
	})
}

func strategyCfg(name, venue, symbol string, enabled bool) config.StrategyConfig {
	return config.StrategyConfig{
		Name:     name,
		Strategy: "vwap",
		Enabled:  enabled,
		Params:   map[string]interface{}{"venue": venue, "symbol": symbol},
	}
}

func TestDeriveStreams(t *testing.T) {
	strategies := []config.StrategyConfig{
		strategyCfg("a", "binance", "ethusdt", true),
		strategyCfg("b", "binance", "btcusdt", true),
		strategyCfg("c", "binance", "BTCUSDT", true),  // 重复 symbol（大小写混用），去重
		strategyCfg("d", "binance", "solusdt", false), // 未启用，忽略
		strategyCfg("e", "okx", "btcusdt", true),      // 其他 venue，忽略
	}

	got := DeriveStreams("binance", strategies)
	want := []domain.StreamID{
		{Symbol: "BTCUSDT", Kind: domain.StreamDepth},
		{Symbol: "BTCUSDT", Kind: domain.StreamTrade},
		{Symbol: "ETHUSDT", Kind: domain.StreamDepth},
		{Symbol: "ETHUSDT", Kind: domain.StreamTrade},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d streams, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stream mismatch at %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestDeriveStreams_DeterministicOrder(t *testing.T) {
	strategies := []config.StrategyConfig{
		strategyCfg("a", "binance", "zecusdt", true),
		strategyCfg("b", "binance", "adausdt", true),
	}
	first := DeriveStreams("binance", strategies)
	for i := 0; i < 10; i++ {
		again := DeriveStreams("binance", strategies)
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("stream order must be stable across calls")
			}
		}
	}
}

func TestBuildRegistry_UnknownConnectorSkipped(t *testing.T) {
	cfg := &config.Config{
		Venues: map[string]config.VenueConfig{
			"good": {Connector: "stub"},
			"bad":  {Connector: "does-not-exist"},
		},
		Strategies: []config.StrategyConfig{strategyCfg("a", "good", "btcusdt", true)},
	}

	r := BuildRegistry(cfg, nopPublisher{})
	if _, ok := r.Get("good"); !ok {
		t.Fatalf("expected venue good to be loaded")
	}
	if _, ok := r.Get("bad"); ok {
		t.Fatalf("venue with unknown connector must be skipped")
	}
	names := r.Names()
	if len(names) != 1 || names[0] != "good" {
		t.Fatalf("unexpected venue names: %v", names)
	}
}

func TestRegistry_ConnectAndDisconnectAll(t *testing.T) {
	cfg := &config.Config{
		Venues: map[string]config.VenueConfig{
			"v1": {Connector: "stub"},
			"v2": {Connector: "stub"},
		},
	}
	r := BuildRegistry(cfg, nopPublisher{})

	r.ConnectAll(context.Background())
	r.DisconnectAll()

	for _, name := range r.Names() {
		conn, _ := r.Get(name)
		stub := conn.(*stubConnector)
		if !stub.connected || !stub.disconnected {
			t.Fatalf("venue %s lifecycle not driven: connected=%v disconnected=%v",
				name, stub.connected, stub.disconnected)
		}
	}
}
