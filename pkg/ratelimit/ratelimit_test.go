package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucket_AllowExhaustsCapacity(t *testing.T) {
	tb := NewTokenBucket(3, 1)
	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("expected token %d to be available", i)
		}
	}
	if tb.Allow() {
		t.Fatalf("expected bucket exhausted")
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	tb := NewTokenBucket(1, 10)
	if !tb.Allow() {
		t.Fatalf("expected initial token")
	}
	if tb.Allow() {
		t.Fatalf("expected bucket empty")
	}
	time.Sleep(1100 * time.Millisecond)
	if !tb.Allow() {
		t.Fatalf("expected token after refill interval")
	}
}

func TestTokenBucket_WaitCanceled(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	_ = tb.Allow() // 清空

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx); err == nil {
		t.Fatalf("expected wait to fail on canceled context")
	}
}

func TestTokenBucket_DegenerateConfig(t *testing.T) {
	tb := NewTokenBucket(0, 0)
	if !tb.Allow() {
		t.Fatalf("degenerate config must still yield one token")
	}
}
