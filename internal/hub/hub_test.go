package hub

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/duel-draft-backend/pkg/types"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, zap.NewNop().Sugar())
}

// helper: receive one delta with a timeout so tests never hang
func recvDelta(t *testing.T, ch <-chan types.Delta, within time.Duration) types.Delta {
	t.Helper()
	select {
	case d, ok := <-ch:
		if !ok {
			t.Fatalf("subscriber outbox closed unexpectedly")
		}
		return d
	case <-time.After(within):
		t.Fatalf("timed out waiting for delta")
		return types.Delta{} // unreachable
	}
}

func recvNoDelta(t *testing.T, ch <-chan types.Delta, within time.Duration) {
	t.Helper()
	select {
	case d, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no delta within %v, got %+v", within, d)
	case <-time.After(within):
	}
}

// waitClosed drains ch until it is closed.
func waitClosed(t *testing.T, ch <-chan types.Delta, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbox not closed within %v", within)
		}
	}
}

func mustSubscribe(t *testing.T, h *Hub, sub *Subscriber) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.Subscribe(ctx, sub); err != nil {
		t.Fatalf("subscribe %s: %v", sub.ID, err)
	}
}

func count(t *testing.T, h *Hub, draftID string) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := h.Count(ctx, draftID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestHub_BroadcastReachesOnlyThatDraft(t *testing.T) {
	h := newTestHub(t)

	a := NewSubscriber("a", "d1", "alice", 4)
	b := NewSubscriber("b", "d1", "bob", 4)
	other := NewSubscriber("c", "d2", "carol", 4)
	mustSubscribe(t, h, a)
	mustSubscribe(t, h, b)
	mustSubscribe(t, h, other)

	h.Broadcast("d1", types.Delta{Type: types.DeltaPickMade, Sequence: 1})

	for _, sub := range []*Subscriber{a, b} {
		d := recvDelta(t, sub.Outbox, 200*time.Millisecond)
		if d.Sequence != 1 {
			t.Fatalf("%s: want sequence 1, got %d", sub.ID, d.Sequence)
		}
	}
	recvNoDelta(t, other.Outbox, 50*time.Millisecond)
}

func TestHub_PreservesOrder(t *testing.T) {
	h := newTestHub(t)
	sub := NewSubscriber("a", "d1", "alice", 16)
	mustSubscribe(t, h, sub)

	for seq := 1; seq <= 5; seq++ {
		h.Broadcast("d1", types.Delta{Type: types.DeltaPickMade, Sequence: seq})
	}
	h.Broadcast("d1",
		types.Delta{Type: types.DeltaPickMade, Sequence: 6},
		types.Delta{Type: types.DeltaDraftCompleted, Sequence: 6},
	)

	for seq := 1; seq <= 6; seq++ {
		d := recvDelta(t, sub.Outbox, 200*time.Millisecond)
		if d.Sequence != seq || d.Type != types.DeltaPickMade {
			t.Fatalf("want pick_made %d, got %s %d", seq, d.Type, d.Sequence)
		}
	}
	last := recvDelta(t, sub.Outbox, 200*time.Millisecond)
	if last.Type != types.DeltaDraftCompleted {
		t.Fatalf("want draft_completed last, got %s", last.Type)
	}
}

func TestHub_DropSlowSubscriber(t *testing.T) {
	h := newTestHub(t)

	slow := NewSubscriber("slow", "d1", "alice", 1)
	fast := NewSubscriber("fast", "d1", "bob", 8)
	mustSubscribe(t, h, slow)
	mustSubscribe(t, h, fast)

	h.Broadcast("d1", types.Delta{Sequence: 1})
	h.Broadcast("d1", types.Delta{Sequence: 2})

	if got := recvDelta(t, fast.Outbox, 200*time.Millisecond); got.Sequence != 1 {
		t.Fatalf("fast: want 1, got %d", got.Sequence)
	}
	if got := recvDelta(t, fast.Outbox, 200*time.Millisecond); got.Sequence != 2 {
		t.Fatalf("fast: want 2, got %d", got.Sequence)
	}

	waitClosed(t, slow.Outbox, 200*time.Millisecond)
	if n := count(t, h, "d1"); n != 1 {
		t.Fatalf("expected slow subscriber to be dropped; count=%d", n)
	}
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	h := newTestHub(t)
	sub := NewSubscriber("a", "d1", "alice", 4)
	mustSubscribe(t, h, sub)

	h.Unsubscribe("d1", "a")
	h.Unsubscribe("d1", "a")
	h.Unsubscribe("nope", "a")

	waitClosed(t, sub.Outbox, 200*time.Millisecond)
	if n := count(t, h, "d1"); n != 0 {
		t.Fatalf("want 0 subscribers, got %d", n)
	}

	// Broadcasting to a draft with nobody listening is a no-op.
	h.Broadcast("d1", types.Delta{Sequence: 1})
	if n := count(t, h, "d1"); n != 0 {
		t.Fatalf("want 0 subscribers, got %d", n)
	}
}

func TestHub_ReusedIDReplacesStaleSubscriber(t *testing.T) {
	h := newTestHub(t)
	first := NewSubscriber("a", "d1", "alice", 4)
	second := NewSubscriber("a", "d1", "alice", 4)
	mustSubscribe(t, h, first)
	mustSubscribe(t, h, second)

	waitClosed(t, first.Outbox, 200*time.Millisecond)
	h.Broadcast("d1", types.Delta{Sequence: 1})
	recvDelta(t, second.Outbox, 200*time.Millisecond)
}

func TestHub_ShutdownClosesOutboxes(t *testing.T) {
	h := newTestHub(t)
	a := NewSubscriber("a", "d1", "alice", 4)
	b := NewSubscriber("b", "d2", "bob", 4)
	mustSubscribe(t, h, a)
	mustSubscribe(t, h, b)

	h.Shutdown()

	waitClosed(t, a.Outbox, 200*time.Millisecond)
	waitClosed(t, b.Outbox, 200*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := h.Subscribe(ctx, NewSubscriber("late", "d1", "alice", 1)); err == nil {
		t.Fatalf("expected subscribe after shutdown to fail")
	}
}

func TestHub_FullInboxClosesDraftSubscribers(t *testing.T) {
	h := newTestHub(t)
	a := NewSubscriber("a", "d1", "alice", 4)
	b := NewSubscriber("b", "d1", "bob", 4)
	other := NewSubscriber("c", "d2", "carol", 4)
	mustSubscribe(t, h, a)
	mustSubscribe(t, h, b)
	mustSubscribe(t, h, other)

	// Park the loop on an unread reply, then fill the inbox behind it.
	stall := make(chan int)
	h.Inbox() <- Count{DraftID: "d2", Reply: stall}
	for i := 0; i < defaultInboxSize; i++ {
		h.Inbox() <- Broadcast{DraftID: "elsewhere", Deltas: []types.Delta{{Sequence: i}}}
	}

	// The final pick and the completion of d1 find no room.
	h.Broadcast("d1",
		types.Delta{Type: types.DeltaPickMade, Sequence: 30},
		types.Delta{Type: types.DeltaDraftCompleted, Sequence: 30},
	)
	<-stall

	waitClosed(t, a.Outbox, time.Second)
	waitClosed(t, b.Outbox, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := h.Count(ctx, "d2")
	if err != nil || n != 1 {
		t.Fatalf("other draft should keep its subscriber, got n=%d err=%v", n, err)
	}
	h.Broadcast("d2", types.Delta{Sequence: 1})
	recvDelta(t, other.Outbox, 200*time.Millisecond)
}

func TestHub_ResyncClosesOnlyThatDraft(t *testing.T) {
	h := newTestHub(t)
	a := NewSubscriber("a", "d1", "alice", 4)
	other := NewSubscriber("c", "d2", "carol", 4)
	mustSubscribe(t, h, a)
	mustSubscribe(t, h, other)

	h.Resync("d1")
	waitClosed(t, a.Outbox, 200*time.Millisecond)

	h.Broadcast("d2", types.Delta{Sequence: 1})
	recvDelta(t, other.Outbox, 200*time.Millisecond)

	// The draft accepts new subscribers afterwards.
	again := NewSubscriber("a", "d1", "alice", 4)
	mustSubscribe(t, h, again)
	h.Broadcast("d1", types.Delta{Sequence: 2})
	if d := recvDelta(t, again.Outbox, 200*time.Millisecond); d.Sequence != 2 {
		t.Fatalf("want sequence 2, got %d", d.Sequence)
	}
}
