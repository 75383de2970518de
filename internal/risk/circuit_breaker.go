package risk

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ErrCircuitBreakerOpen 表示断路器已打开，禁止继续交易。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// CircuitBreakerConfig 断路器配置。
// 约定：阈值 <= 0 表示关闭对应限制。
type CircuitBreakerConfig struct {
	// MaxConsecutiveFailures 连续下单失败上限。
	MaxConsecutiveFailures int64

	// ResetInterval 熔断后自动恢复的间隔。<= 0 表示不自动恢复。
	ResetInterval time.Duration
}

// CircuitBreaker 快路径使用原子变量，避免在信号热路径上加锁。
type CircuitBreaker struct {
	halted   atomic.Bool
	haltedAt atomic.Int64 // UnixNano

	consecutiveFailures atomic.Int64

	maxConsecutiveFailures atomic.Int64
	resetInterval          atomic.Int64 // 纳秒
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{}
	cb.SetConfig(cfg)
	return cb
}

func (cb *CircuitBreaker) SetConfig(cfg CircuitBreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxConsecutiveFailures.Store(cfg.MaxConsecutiveFailures)
	cb.resetInterval.Store(int64(cfg.ResetInterval))
}

// Halt 手动熔断（如人工介入或检测到严重异常）。
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	cb.halted.Store(true)
	cb.haltedAt.Store(time.Now().UnixNano())
}

// Resume 手动恢复（会同时清空连续失败计数）。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.consecutiveFailures.Store(0)
}

// AllowTrading 快路径检查是否允许交易。
func (cb *CircuitBreaker) AllowTrading() error {
	if cb == nil {
		return nil
	}

	if cb.halted.Load() {
		// 到达恢复间隔后自动复位
		interval := cb.resetInterval.Load()
		if interval > 0 && time.Now().UnixNano()-cb.haltedAt.Load() >= interval {
			cb.Resume()
			return nil
		}
		return ErrCircuitBreakerOpen
	}

	maxFail := cb.maxConsecutiveFailures.Load()
	if maxFail > 0 && cb.consecutiveFailures.Load() >= maxFail {
		cb.Halt()
		return ErrCircuitBreakerOpen
	}
	return nil
}

// RecordFailure 记录一次下单失败。
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}
	cb.consecutiveFailures.Add(1)
}

// RecordSuccess 记录一次成功，清空连续失败计数。
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveFailures.Store(0)
}
