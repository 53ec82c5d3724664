package chat

import (
	"testing"
	"time"
)

// TestPresenceSingleSessionLifecycle tests the basic online/offline cycle.
// It verifies that the first session brings an identity online, that going
// offline stamps a recent last-seen timestamp, and that both calls report
// the state transition.
func TestPresenceSingleSessionLifecycle(t *testing.T) {
	presence := NewPresence(nil)

	if !presence.SetOnline("alice", "s1") {
		t.Error("First SetOnline should report a transition to online")
	}
	if rec := presence.Get("alice"); !rec.Online {
		t.Error("Expected alice to be online")
	}

	before := time.Now().UTC()
	if !presence.SetOffline("alice", "s1") {
		t.Error("Last SetOffline should report a transition to offline")
	}

	rec := presence.Get("alice")
	if rec.Online {
		t.Error("Expected alice to be offline")
	}
	if rec.LastSeen.Before(before) || rec.LastSeen.After(time.Now().UTC()) {
		t.Errorf("LastSeen %v is not approximately now", rec.LastSeen)
	}
}

// TestPresenceReferenceCounting tests multi-session presence.
// It verifies that an identity with two concurrent sessions stays online
// until the last one closes, matching the multi-device model.
func TestPresenceReferenceCounting(t *testing.T) {
	presence := NewPresence(nil)

	if !presence.SetOnline("alice", "s1") {
		t.Error("First session should transition alice online")
	}
	if presence.SetOnline("alice", "s2") {
		t.Error("Second session should not report another transition")
	}

	if presence.SetOffline("alice", "s1") {
		t.Error("Closing one of two sessions should not transition offline")
	}
	if rec := presence.Get("alice"); !rec.Online {
		t.Error("Expected alice to remain online with one session open")
	}

	if !presence.SetOffline("alice", "s2") {
		t.Error("Closing the last session should transition offline")
	}
	if rec := presence.Get("alice"); rec.Online {
		t.Error("Expected alice to be offline after the last session closed")
	}
}

// TestPresenceOfflineUnknownSession tests spurious disconnect handling.
// It verifies that SetOffline for an identity or session that was never
// online reports no transition and does not panic.
func TestPresenceOfflineUnknownSession(t *testing.T) {
	presence := NewPresence(nil)

	if presence.SetOffline("ghost", "s1") {
		t.Error("SetOffline for an unknown identity should not report a transition")
	}

	presence.SetOnline("alice", "s1")
	if presence.SetOffline("alice", "s2") {
		t.Error("SetOffline for an unknown session should not report a transition")
	}
	if rec := presence.Get("alice"); !rec.Online {
		t.Error("Alice should still be online after a spurious SetOffline")
	}
}

// TestPresenceLastSeenMonotonic tests the last-seen invariant.
// It verifies that reconnecting and disconnecting again never moves the
// last-seen timestamp backwards.
func TestPresenceLastSeenMonotonic(t *testing.T) {
	presence := NewPresence(nil)

	presence.SetOnline("alice", "s1")
	presence.SetOffline("alice", "s1")
	first := presence.Get("alice").LastSeen

	presence.SetOnline("alice", "s2")
	presence.SetOffline("alice", "s2")
	second := presence.Get("alice").LastSeen

	if second.Before(first) {
		t.Errorf("LastSeen moved backwards: %v -> %v", first, second)
	}
}
