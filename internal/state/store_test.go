package state

import (
	"testing"
	"time"
)

func TestRegisterAndGet(t *testing.T) {
	s := New(time.Hour)
	s.RegisterToolUse("toolu-1", "TodoWrite", "")

	meta, ok := s.GetMetadata("toolu-1")
	if !ok {
		t.Fatalf("expected hit")
	}
	if meta.FunctionName != "TodoWrite" {
		t.Errorf("FunctionName = %q, want TodoWrite", meta.FunctionName)
	}
}

func TestGetMetadataMiss(t *testing.T) {
	s := New(time.Hour)
	if _, ok := s.GetMetadata("missing"); ok {
		t.Errorf("expected miss for unregistered id")
	}
}

func TestThoughtTokenPreserved(t *testing.T) {
	s := New(time.Hour)
	s.RegisterToolUse("toolu-2", "Read", "opaque-token-abc")

	meta, ok := s.GetMetadata("toolu-2")
	if !ok || meta.ThoughtToken != "opaque-token-abc" {
		t.Errorf("expected thought token to round-trip, got %+v ok=%v", meta, ok)
	}
}

func TestExpireIdle(t *testing.T) {
	s := New(10 * time.Millisecond)
	s.RegisterToolUse("toolu-3", "Bash", "")

	time.Sleep(30 * time.Millisecond)
	s.ExpireIdle(time.Now())

	if _, ok := s.GetMetadata("toolu-3"); ok {
		t.Errorf("expected entry to have expired")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	s := New(0)
	s.RegisterToolUse("toolu-4", "Bash", "")
	s.ExpireIdle(time.Now().Add(24 * time.Hour))

	if _, ok := s.GetMetadata("toolu-4"); !ok {
		t.Errorf("expected zero-TTL entry to survive")
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	s := New(time.Hour)
	s.RegisterToolUse("toolu-5", "Grep", "")

	if !s.VerifyRoundTrip("toolu-5", "Grep") {
		t.Errorf("expected round trip to verify")
	}
	if s.VerifyRoundTrip("toolu-5", "Bash") {
		t.Errorf("expected round trip to fail for mismatched name")
	}
	if s.VerifyRoundTrip("unknown", "Grep") {
		t.Errorf("expected round trip to fail for unknown id")
	}
}

func TestRegisterOverwritesExistingEntry(t *testing.T) {
	s := New(time.Hour)
	s.RegisterToolUse("toolu-6", "Bash", "")
	s.RegisterToolUse("toolu-6", "Grep", "tok")

	meta, ok := s.GetMetadata("toolu-6")
	if !ok || meta.FunctionName != "Grep" || meta.ThoughtToken != "tok" {
		t.Errorf("expected overwrite to win, got %+v", meta)
	}
}

func TestConcurrentAccessDoesNotRace(t *testing.T) {
	s := New(time.Hour)
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			id := "toolu-concurrent"
			s.RegisterToolUse(id, "Tool", "")
			s.GetMetadata(id)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
}
