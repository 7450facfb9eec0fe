package lockdown

import "testing"

func TestSentinelRebootsExactlyOnce(t *testing.T) {
	p := &fakePlatform{}
	s := NewSentinel("secret", p)

	s.OnExit(true)
	s.OnExit(true) // a second exit path must not fire again
	if p.reboots != 1 {
		t.Fatalf("reboots = %d, want exactly 1", p.reboots)
	}
}

func TestSentinelNoRebootWhenAuthorized(t *testing.T) {
	p := &fakePlatform{}
	s := NewSentinel("secret", p)

	if s.Authorize("wrong") {
		t.Fatal("wrong code accepted")
	}
	if !s.Authorize("secret") {
		t.Fatal("correct code rejected")
	}
	if !s.Authorized() {
		t.Fatal("not authorized after correct code")
	}
	s.OnExit(true)
	if p.reboots != 0 {
		t.Fatalf("reboots = %d, want 0 after authorization", p.reboots)
	}
}

func TestSentinelWrongCodeRetriable(t *testing.T) {
	p := &fakePlatform{}
	s := NewSentinel("secret", p)

	// rejection never locks out further attempts
	for i := 0; i < 5; i++ {
		if s.Authorize("nope") {
			t.Fatal("wrong code accepted")
		}
	}
	if !s.Authorize("secret") {
		t.Fatal("correct code rejected after retries")
	}
}

func TestSentinelNoRebootWhenUnlocked(t *testing.T) {
	p := &fakePlatform{}
	s := NewSentinel("secret", p)

	s.OnExit(false)
	if p.reboots != 0 {
		t.Fatalf("reboots = %d, want 0 when not locked", p.reboots)
	}
}

func TestSentinelEmptyKillCodeNeverAuthorizes(t *testing.T) {
	p := &fakePlatform{}
	s := NewSentinel("", p)

	if s.Authorize("") {
		t.Fatal("empty kill code must never authorize")
	}
}
