package resilience

import (
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if !b.AllowRequest() {
			t.Fatalf("breaker opened after %d failures, threshold is 3", i+1)
		}
	}

	b.RecordFailure()
	if b.AllowRequest() {
		t.Error("AllowRequest() = true after reaching the failure threshold")
	}
	if got := b.State(); got != Open {
		t.Errorf("State() = %v, want Open", got)
	}
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	b := NewBreaker(1, 10*time.Second)

	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	if b.AllowRequest() {
		t.Fatal("AllowRequest() = true while Open")
	}

	// Break duration elapses: exactly one trial request is granted.
	now = now.Add(10 * time.Second)
	if !b.AllowRequest() {
		t.Fatal("AllowRequest() = false after break duration elapsed")
	}
	if got := b.State(); got != HalfOpen {
		t.Fatalf("State() = %v, want HalfOpen", got)
	}
	if b.AllowRequest() {
		t.Error("second AllowRequest() = true while HalfOpen trial is in flight")
	}
}

func TestBreakerAbandonedTrialRegrantsAfterBreakDuration(t *testing.T) {
	b := NewBreaker(1, 10*time.Second)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(10 * time.Second)
	if !b.AllowRequest() {
		t.Fatal("AllowRequest() = false after break duration elapsed")
	}

	// The trial ends without RecordSuccess or RecordFailure (for example a
	// permanent error propagated past the retry loop). The breaker must not
	// stay HalfOpen forever.
	now = now.Add(5 * time.Second)
	if b.AllowRequest() {
		t.Error("AllowRequest() = true before a full break window passed since the trial")
	}
	now = now.Add(5 * time.Second)
	if !b.AllowRequest() {
		t.Fatal("AllowRequest() = false after the abandoned trial's break window elapsed")
	}

	b.RecordSuccess()
	if got := b.State(); got != Closed {
		t.Errorf("State() = %v, want Closed after the fresh trial succeeded", got)
	}
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	b := NewBreaker(1, 10*time.Second)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(10 * time.Second)
	b.AllowRequest() // trial

	b.RecordSuccess()
	if got := b.State(); got != Closed {
		t.Errorf("State() = %v, want Closed", got)
	}
	if got := b.Failures(); got != 0 {
		t.Errorf("Failures() = %d, want 0 after HalfOpen success", got)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(1, 10*time.Second)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(10 * time.Second)
	b.AllowRequest() // trial

	b.RecordFailure()
	if got := b.State(); got != Open {
		t.Fatalf("State() = %v, want Open after failed trial", got)
	}

	// The break timer restarted with the failed trial.
	now = now.Add(5 * time.Second)
	if b.AllowRequest() {
		t.Error("AllowRequest() = true before the restarted break duration elapsed")
	}
	now = now.Add(5 * time.Second)
	if !b.AllowRequest() {
		t.Error("AllowRequest() = false after the restarted break duration elapsed")
	}
}
