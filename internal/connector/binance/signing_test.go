package binance

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantbot/gotrader/internal/domain"
)

func TestSign_KnownVector(t *testing.T) {
	// 交易所官方文档的示例向量
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	qs := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"

	if got := sign(qs, secret); got != want {
		t.Fatalf("signature mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestBuildOrderParams_LimitFieldOrder(t *testing.T) {
	req := domain.OrderRequest{
		ClientOrderID: "abc-123",
		Symbol:        "BTCUSDT",
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeLimit,
		Quantity:      decimal.RequireFromString("0.5"),
		Price:         decimal.RequireFromString("30000.1"),
	}

	qs := encodeParams(buildOrderParams(req, 1700000000000, 5000))
	want := "symbol=BTCUSDT&side=BUY&type=LIMIT&quantity=0.5&price=30000.1&timeInForce=GTC&newClientOrderId=abc-123&timestamp=1700000000000&recvWindow=5000"
	if qs != want {
		t.Fatalf("query string mismatch:\n got %s\nwant %s", qs, want)
	}
}

func TestBuildOrderParams_MarketOmitsPrice(t *testing.T) {
	req := domain.OrderRequest{
		ClientOrderID: "abc-456",
		Symbol:        "ETHUSDT",
		Side:          domain.SideSell,
		Type:          domain.OrderTypeMarket,
		Quantity:      decimal.RequireFromString("2"),
	}

	qs := encodeParams(buildOrderParams(req, 1700000000000, 5000))
	if strings.Contains(qs, "price=") || strings.Contains(qs, "timeInForce=") {
		t.Fatalf("market order must not carry price/timeInForce: %s", qs)
	}
	want := "symbol=ETHUSDT&side=SELL&type=MARKET&quantity=2&newClientOrderId=abc-456&timestamp=1700000000000&recvWindow=5000"
	if qs != want {
		t.Fatalf("query string mismatch:\n got %s\nwant %s", qs, want)
	}
}

func TestSignedQuery_Deterministic(t *testing.T) {
	req := domain.OrderRequest{
		ClientOrderID: "abc-789",
		Symbol:        "BTCUSDT",
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeLimit,
		Quantity:      decimal.RequireFromString("1"),
		Price:         decimal.RequireFromString("100"),
	}
	params := buildOrderParams(req, 1700000000000, 5000)

	a := signedQuery(params, "secret")
	b := signedQuery(params, "secret")
	if a != b {
		t.Fatalf("same params must sign identically:\n a=%s\n b=%s", a, b)
	}
	// signature 永远追加在最后
	idx := strings.LastIndex(a, "&signature=")
	if idx < 0 || idx+len("&signature=")+64 != len(a) {
		t.Fatalf("expected 64-char hex signature as last parameter: %s", a)
	}
	if sign(a[:idx], "secret") != a[idx+len("&signature="):] {
		t.Fatalf("signature does not match signed payload")
	}
}
