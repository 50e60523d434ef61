package breaker

import (
    "testing"
    "time"

    "github.com/hungson175/hd-tts/internal/config"
)

func TestBreakerTransitions(t *testing.T) {
    cb := New(2*time.Second, 200*time.Millisecond, 0.5, 2)
    if cb.State() != Closed { t.Fatal("expected closed") }
    cb.Record(false)
    cb.Record(false)
    time.Sleep(10 * time.Millisecond)
    if cb.State() != Open { t.Fatal("expected open") }
    if cb.Allow() != false { t.Fatal("should not allow until cooldown") }
    time.Sleep(250 * time.Millisecond)
    if cb.Allow() != true { t.Fatal("should allow probe in half-open") }
    cb.Record(true)
    if cb.State() != Closed { t.Fatal("expected closed after probe success") }
}

func TestNewFromConfigMatchesFieldOrder(t *testing.T) {
    cfg := config.CircuitBreaker{
        Window:           2 * time.Second,
        CooldownPeriod:   200 * time.Millisecond,
        FailureThreshold: 0.5,
        MinSamples:       2,
    }
    cb := NewFromConfig(cfg)
    if cb.window != cfg.Window { t.Fatal("window not wired from config") }
    if cb.cooldown != cfg.CooldownPeriod { t.Fatal("cooldown not wired from config") }
    if cb.failureThresh != cfg.FailureThreshold { t.Fatal("failure threshold not wired from config") }
    if cb.minSamples != cfg.MinSamples { t.Fatal("min samples not wired from config") }
}
