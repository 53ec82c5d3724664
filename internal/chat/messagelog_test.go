package chat

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/privchat/privchat-server/internal/models"
)

func newTestLog(t *testing.T) (*MessageLog, *Conversations, *Directory, *Router) {
	t.Helper()
	s := newTestStore(t)
	dir := NewDirectory(s)
	convs := NewConversations(s, dir)
	router := NewRouter()
	return NewMessageLog(s, convs, router), convs, dir, router
}

// TestAppendScenario tests the canonical two-party exchange.
// Alice and Bob trade messages in their direct conversation; the sequence
// numbers come out 1 and 2, full replay returns both in order, and the
// outsider Eve is rejected with ErrNotMember.
func TestAppendScenario(t *testing.T) {
	log, convs, dir, _ := newTestLog(t)
	alice := createIdentity(t, dir, "alice@example.com")
	bob := createIdentity(t, dir, "bob@example.com")
	eve := createIdentity(t, dir, "eve@example.com")

	conv, err := convs.CreateDirect(alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("CreateDirect failed: %v", err)
	}

	first, err := log.Append(conv.ID, alice.ID, "hi")
	if err != nil {
		t.Fatalf("First append failed: %v", err)
	}
	if first.Seq != 1 {
		t.Errorf("First message seq = %d, want 1", first.Seq)
	}

	second, err := log.Append(conv.ID, bob.ID, "hello")
	if err != nil {
		t.Fatalf("Second append failed: %v", err)
	}
	if second.Seq != 2 {
		t.Errorf("Second message seq = %d, want 2", second.Seq)
	}

	if _, err := log.Append(conv.ID, eve.ID, "hey"); !errors.Is(err, ErrNotMember) {
		t.Errorf("Outsider append returned %v, want ErrNotMember", err)
	}

	history, err := log.ListSince(conv.ID, alice.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListSince failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History has %d messages, want 2", len(history))
	}
	if history[0].Text != "hi" || history[0].SenderID != alice.ID || history[0].Seq != 1 {
		t.Errorf("Unexpected first message: %+v", history[0])
	}
	if history[1].Text != "hello" || history[1].SenderID != bob.ID || history[1].Seq != 2 {
		t.Errorf("Unexpected second message: %+v", history[1])
	}
}

// TestAppendValidation tests message input validation.
// It verifies blank text, oversized text, and unknown conversations.
func TestAppendValidation(t *testing.T) {
	log, convs, dir, _ := newTestLog(t)
	alice := createIdentity(t, dir, "alice@example.com")
	bob := createIdentity(t, dir, "bob@example.com")

	conv, err := convs.CreateDirect(alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("CreateDirect failed: %v", err)
	}

	if _, err := log.Append(conv.ID, alice.ID, "   \n\t "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Blank append returned %v, want ErrEmptyText", err)
	}

	huge := make([]byte, MaxMessageTextLen+1)
	for i := range huge {
		huge[i] = 'a'
	}
	if _, err := log.Append(conv.ID, alice.ID, string(huge)); !errors.Is(err, ErrValidation) {
		t.Errorf("Oversized append returned %v, want ErrValidation", err)
	}

	if _, err := log.Append("missing", alice.ID, "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Append to unknown conversation returned %v, want ErrNotFound", err)
	}
}

// TestAppendRejectionLeavesLogUnchanged tests failure isolation.
// It verifies that a rejected append from a non-member leaves the log
// length and tail sequence number untouched.
func TestAppendRejectionLeavesLogUnchanged(t *testing.T) {
	log, convs, dir, _ := newTestLog(t)
	alice := createIdentity(t, dir, "alice@example.com")
	bob := createIdentity(t, dir, "bob@example.com")
	eve := createIdentity(t, dir, "eve@example.com")

	conv, err := convs.CreateDirect(alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("CreateDirect failed: %v", err)
	}
	if _, err := log.Append(conv.ID, alice.ID, "hi"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if _, err := log.Append(conv.ID, eve.ID, "intrusion"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("Outsider append returned %v, want ErrNotMember", err)
	}

	history, err := log.ListSince(conv.ID, alice.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListSince failed: %v", err)
	}
	if len(history) != 1 || history[0].Seq != 1 {
		t.Errorf("Log changed by rejected append: %d messages, tail seq %d", len(history), history[len(history)-1].Seq)
	}

	next, err := log.Append(conv.ID, bob.ID, "still fine")
	if err != nil {
		t.Fatalf("Append after rejection failed: %v", err)
	}
	if next.Seq != 2 {
		t.Errorf("Sequence after rejected append = %d, want 2", next.Seq)
	}
}

// TestAppendConcurrentSequenceNumbers tests atomic sequence assignment.
// It verifies that N concurrent appenders to one conversation produce
// strictly increasing sequence numbers with no gaps and no duplicates.
func TestAppendConcurrentSequenceNumbers(t *testing.T) {
	log, convs, dir, _ := newTestLog(t)
	alice := createIdentity(t, dir, "alice@example.com")
	bob := createIdentity(t, dir, "bob@example.com")

	conv, err := convs.CreateDirect(alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("CreateDirect failed: %v", err)
	}

	const appenders = 20
	seqs := make(chan int64, appenders)
	var wg sync.WaitGroup
	for i := 0; i < appenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := alice.ID
			if i%2 == 1 {
				sender = bob.ID
			}
			msg, err := log.Append(conv.ID, sender, "concurrent message")
			if err != nil {
				t.Errorf("Concurrent append failed: %v", err)
				return
			}
			seqs <- msg.Seq
		}(i)
	}
	wg.Wait()
	close(seqs)

	var assigned []int64
	for seq := range seqs {
		assigned = append(assigned, seq)
	}
	sort.Slice(assigned, func(i, j int) bool { return assigned[i] < assigned[j] })

	if len(assigned) != appenders {
		t.Fatalf("Got %d sequence numbers, want %d", len(assigned), appenders)
	}
	for i, seq := range assigned {
		if seq != int64(i+1) {
			t.Fatalf("Sequence numbers have gaps or duplicates: %v", assigned)
		}
	}
}

// TestAppendPublishesEventsInOrder tests the fan-out side effect.
// It verifies that a subscribed session receives message.appended events in
// sequence order, followed by conversation.updated events carrying the
// refreshed summary.
func TestAppendPublishesEventsInOrder(t *testing.T) {
	log, convs, dir, router := newTestLog(t)
	alice := createIdentity(t, dir, "alice@example.com")
	bob := createIdentity(t, dir, "bob@example.com")

	conv, err := convs.CreateDirect(alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("CreateDirect failed: %v", err)
	}

	queue := router.Attach("s1", 16, nil)
	if err := router.Subscribe("s1", conv.ID); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if _, err := log.Append(conv.ID, alice.ID, "first"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := log.Append(conv.ID, bob.ID, "second"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	var appended []models.Message
	var updated []models.Conversation
	timeout := time.After(time.Second)
	for len(appended)+len(updated) < 4 {
		select {
		case ev := <-queue:
			switch ev.Type {
			case models.EventMessageAppended:
				appended = append(appended, ev.Payload.(models.Message))
			case models.EventConversationUpdated:
				updated = append(updated, ev.Payload.(models.Conversation))
			default:
				t.Fatalf("Unexpected event type %q", ev.Type)
			}
		case <-timeout:
			t.Fatalf("Timed out: %d appended, %d updated events", len(appended), len(updated))
		}
	}

	if len(appended) != 2 || appended[0].Seq != 1 || appended[1].Seq != 2 {
		t.Errorf("message.appended events out of order: %+v", appended)
	}
	if len(updated) != 2 {
		t.Fatalf("Expected 2 conversation.updated events, got %d", len(updated))
	}
	last := updated[1]
	if last.LastMessage == nil || last.LastMessage.Text != "second" {
		t.Errorf("Final summary = %+v, want text %q", last.LastMessage, "second")
	}
}

// TestListSinceCatchUp tests incremental history replay.
// It verifies that a client reconnecting with its last known sequence
// number receives exactly the messages it missed, and that limits and
// membership are enforced.
func TestListSinceCatchUp(t *testing.T) {
	log, convs, dir, _ := newTestLog(t)
	alice := createIdentity(t, dir, "alice@example.com")
	bob := createIdentity(t, dir, "bob@example.com")
	eve := createIdentity(t, dir, "eve@example.com")

	conv, err := convs.CreateDirect(alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("CreateDirect failed: %v", err)
	}
	for _, text := range []string{"one", "two", "three", "four"} {
		if _, err := log.Append(conv.ID, alice.ID, text); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	caughtUp, err := log.ListSince(conv.ID, bob.ID, 2, 10)
	if err != nil {
		t.Fatalf("ListSince failed: %v", err)
	}
	if len(caughtUp) != 2 || caughtUp[0].Seq != 3 || caughtUp[1].Seq != 4 {
		t.Errorf("Catch-up returned wrong window: %+v", caughtUp)
	}

	limited, err := log.ListSince(conv.ID, bob.ID, 0, 3)
	if err != nil {
		t.Fatalf("Limited ListSince failed: %v", err)
	}
	if len(limited) != 3 || limited[2].Seq != 3 {
		t.Errorf("Limit not honored: %+v", limited)
	}

	if _, err := log.ListSince(conv.ID, eve.ID, 0, 10); !errors.Is(err, ErrNotMember) {
		t.Errorf("Outsider ListSince returned %v, want ErrNotMember", err)
	}
}
