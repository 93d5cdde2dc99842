package breaker

import (
	"testing"
	"time"

	"ultrareader/internal/clock"
)

func TestOpensAfterThresholdFailures(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(Config{FailureThreshold: 2, CooldownMs: 1000, HalfOpenMaxAttempts: 1}, WithClock(fc))

	if !b.CanRequest("example.com") {
		t.Fatal("expected closed breaker to admit")
	}
	b.RecordFailure("example.com")
	if b.GetState("example.com") != Closed {
		t.Fatal("expected still closed after 1 failure")
	}
	b.RecordFailure("example.com")
	if b.GetState("example.com") != Open {
		t.Fatal("expected open after threshold failures")
	}
	if b.CanRequest("example.com") {
		t.Fatal("expected open breaker to deny before cooldown")
	}

	fc.Advance(1001 * time.Millisecond)
	if !b.CanRequest("example.com") {
		t.Fatal("expected breaker to admit exactly once after cooldown (half-open)")
	}
	if b.CanRequest("example.com") {
		t.Fatal("expected half-open with max-attempts=1 to deny a second concurrent probe")
	}
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(Config{FailureThreshold: 1, CooldownMs: 500, HalfOpenMaxAttempts: 1, ResetOnSuccess: true}, WithClock(fc))
	b.RecordFailure("d.com")
	fc.Advance(600 * time.Millisecond)
	if !b.CanRequest("d.com") {
		t.Fatal("expected half-open admission")
	}
	b.RecordSuccess("d.com")
	if b.GetState("d.com") != Closed {
		t.Fatal("expected closed after half-open success")
	}
}

func TestHalfOpenFailureReopensWithoutRestartingFromOpen(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(Config{FailureThreshold: 1, CooldownMs: 500, HalfOpenMaxAttempts: 1}, WithClock(fc))
	b.RecordFailure("d.com")
	fc.Advance(600 * time.Millisecond)
	b.CanRequest("d.com") // transitions to half-open
	b.RecordFailure("d.com")
	if b.GetState("d.com") != Open {
		t.Fatal("expected reopened after half-open failure")
	}
	if got := b.GetCooldownRemaining("d.com"); got <= 0 {
		t.Fatal("expected cooldown to have restarted")
	}

	// Open state does not restart cooldown on further failures.
	remainingBefore := b.GetCooldownRemaining("d.com")
	fc.Advance(100 * time.Millisecond)
	b.RecordFailure("d.com")
	remainingAfter := b.GetCooldownRemaining("d.com")
	if remainingAfter >= remainingBefore {
		t.Fatal("expected cooldown to keep counting down, not restart, while already open")
	}
}

func TestGetStateDoesNotSelfTransition(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(Config{FailureThreshold: 1, CooldownMs: 100}, WithClock(fc))
	b.RecordFailure("d.com")
	fc.Advance(200 * time.Millisecond) // cooldown elapsed
	if b.GetState("d.com") != Open {
		t.Fatal("GetState must not lazily transition to half_open; only CanRequest does")
	}
	b.CanRequest("d.com")
	if b.GetState("d.com") != HalfOpen {
		t.Fatal("expected half_open only after CanRequest observed the elapsed cooldown")
	}
}

func TestResetClearsDomain(t *testing.T) {
	b := New(Config{FailureThreshold: 1})
	b.RecordFailure("d.com")
	b.Reset("d.com")
	if b.GetState("d.com") != Closed {
		t.Fatal("expected reset domain to be closed")
	}
}

func TestCooldownRemainingNonNegative(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(Config{FailureThreshold: 1, CooldownMs: 100}, WithClock(fc))
	b.RecordFailure("d.com")
	fc.Advance(10 * time.Second)
	if got := b.GetCooldownRemaining("d.com"); got < 0 {
		t.Fatalf("cooldown remaining must never be negative, got %v", got)
	}
}
