package analytics

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/quantbot/gotrader/internal/domain"
	"github.com/quantbot/gotrader/internal/events"
	"github.com/quantbot/gotrader/pkg/config"
)

func fillEvent(strategyID, clientOrderID, price, qty string) events.Event {
	return events.New(events.KindFill, events.FillEvent{
		Venue:         "binance",
		Symbol:        "BTCUSDT",
		ClientOrderID: clientOrderID,
		VenueOrderID:  "1",
		StrategyID:    strategyID,
		Side:          domain.SideBuy,
		Price:         decimal.RequireFromString(price),
		Quantity:      decimal.RequireFromString(qty),
		Timestamp:     1700000000000,
	})
}

func TestMonitor_MemoryCounters(t *testing.T) {
	m, err := NewMonitor(config.AnalyticsConfig{Enabled: true})
	require.NoError(t, err)
	defer m.Close()

	sig := events.New(events.KindSignal, events.SignalEvent{StrategyID: "vwap-a"})
	require.NoError(t, m.OnSignal(context.Background(), sig))
	require.NoError(t, m.OnSignal(context.Background(), sig))
	require.NoError(t, m.OnFill(context.Background(), fillEvent("vwap-a", "o1", "100", "0.5")))
	require.NoError(t, m.OnFill(context.Background(), fillEvent("vwap-a", "o1", "102", "0.5")))
	require.NoError(t, m.OnFill(context.Background(), fillEvent("vwap-b", "o2", "50", "1")))

	snap := m.Snapshot()
	a := snap["vwap-a"]
	require.EqualValues(t, 2, a.Signals)
	require.EqualValues(t, 2, a.Fills)
	require.True(t, a.FilledQty.Equal(decimal.RequireFromString("1")))
	require.True(t, a.Notional.Equal(decimal.RequireFromString("101"))) // 100*0.5 + 102*0.5

	b := snap["vwap-b"]
	require.EqualValues(t, 1, b.Fills)
	require.True(t, b.Notional.Equal(decimal.RequireFromString("50")))
}

func TestMonitor_PersistsFillsToSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fills.db")
	m, err := NewMonitor(config.AnalyticsConfig{Enabled: true, DBPath: dbPath})
	require.NoError(t, err)

	require.NoError(t, m.OnFill(context.Background(), fillEvent("vwap-a", "o1", "100", "0.5")))
	require.NoError(t, m.OnFill(context.Background(), fillEvent("vwap-a", "o2", "101", "0.25")))
	require.NoError(t, m.Close())

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM fills`).Scan(&count))
	require.Equal(t, 2, count)

	var symbol, price, qty string
	require.NoError(t, db.QueryRow(
		`SELECT symbol, price, quantity FROM fills WHERE client_order_id = ?`, "o1",
	).Scan(&symbol, &price, &qty))
	require.Equal(t, "BTCUSDT", symbol)
	require.Equal(t, "100", price)
	require.Equal(t, "0.5", qty)
}

func TestMonitor_BadPayloadReturnsError(t *testing.T) {
	m, err := NewMonitor(config.AnalyticsConfig{Enabled: true})
	require.NoError(t, err)
	defer m.Close()

	bad := events.New(events.KindFill, "not-a-fill")
	require.Error(t, m.OnFill(context.Background(), bad))
}
