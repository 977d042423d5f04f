package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/duel-draft-backend/internal/engine"
	"github.com/DoyleJ11/duel-draft-backend/internal/storage"
)

type fakeSaver struct {
	mu    sync.Mutex
	saved []engine.Pick
	err   error
}

func (f *fakeSaver) SaveDraftAfterPick(_ context.Context, _ engine.Draft, p engine.Pick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, p)
	return nil
}

func (f *fakeSaver) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSaver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakePublisher struct {
	ch chan []engine.Event
}

func (f *fakePublisher) Publish(_ string, events []engine.Event) { f.ch <- events }

func recvEvents(t *testing.T, ch <-chan []engine.Event, within time.Duration) []engine.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(within):
		t.Fatalf("timed out waiting for events")
		return nil // unreachable
	}
}

func recvNoEvents(t *testing.T, ch <-chan []engine.Event, within time.Duration) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("expected no events within %v, got %+v", within, ev)
	case <-time.After(within):
	}
}

// testState is a two-slot draft (QB, RB) between alice and bob.
func testState() engine.State {
	d := engine.NewDraft("d1", "p1", "l1", 0, [2]string{"bob", "alice"}, time.Unix(0, 0))
	s := engine.NewState(d, []engine.Player{
		{ID: "qb1", Position: engine.PosQB, CompositeRank: 1},
		{ID: "qb2", Position: engine.PosQB, CompositeRank: 2},
		{ID: "rb1", Position: engine.PosRB, CompositeRank: 3},
		{ID: "rb2", Position: engine.PosRB, CompositeRank: 4},
	})
	s.Rules = engine.Rules{Spots: map[engine.Slot]int{engine.SlotQB: 1, engine.SlotRB: 1}}
	return s
}

func newTestRoom(t *testing.T) (*Room, *fakeSaver, *fakePublisher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	saver := &fakeSaver{}
	pub := &fakePublisher{ch: make(chan []engine.Event, 16)}
	r := NewRoom(ctx, testState(), Options{Saver: saver, Publisher: pub})
	return r, saver, pub
}

func submit(t *testing.T, r *Room, drafter, player, token string) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := r.Submit(ctx, engine.PickCommand{DrafterID: drafter, PlayerID: player, Token: token})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return res
}

func state(t *testing.T, r *Room) engine.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := r.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return s
}

func TestRoom_SubmitCommitsAndPublishes(t *testing.T) {
	r, saver, pub := newTestRoom(t)

	res := submit(t, r, "alice", "qb1", "t1")
	if res.Err != nil || res.Duplicate {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Pick.Sequence != 1 || res.Pick.Timestamp.IsZero() {
		t.Fatalf("bad pick %+v", res.Pick)
	}

	events := recvEvents(t, pub.ch, 100*time.Millisecond)
	if len(events) != 1 || events[0].Type != engine.EvtPickMade || events[0].NextPickerID != "bob" {
		t.Fatalf("unexpected events %+v", events)
	}

	s := state(t, r)
	if s.Draft.Status != engine.StatusActive || s.Draft.CurrentPickerID != "bob" {
		t.Fatalf("unexpected draft %+v", s.Draft)
	}
	if saver.count() != 1 {
		t.Fatalf("want 1 save, got %d", saver.count())
	}
}

func TestRoom_RejectedPickIsNotSaved(t *testing.T) {
	r, saver, pub := newTestRoom(t)

	res := submit(t, r, "bob", "qb1", "t1")
	if !errors.Is(res.Err, engine.ErrNotYourTurn) {
		t.Fatalf("want ErrNotYourTurn, got %v", res.Err)
	}
	recvNoEvents(t, pub.ch, 50*time.Millisecond)
	if saver.count() != 0 {
		t.Fatalf("rejected pick must not be saved")
	}
}

func TestRoom_DuplicateTokenReturnsOriginal(t *testing.T) {
	r, saver, pub := newTestRoom(t)

	first := submit(t, r, "alice", "qb1", "t1")
	recvEvents(t, pub.ch, 100*time.Millisecond)

	again := submit(t, r, "alice", "qb1", "t1")
	if !again.Duplicate || again.Err != nil {
		t.Fatalf("want duplicate, got %+v", again)
	}
	if again.Pick != first.Pick {
		t.Fatalf("duplicate returned %+v, want %+v", again.Pick, first.Pick)
	}
	recvNoEvents(t, pub.ch, 50*time.Millisecond)
	if saver.count() != 1 {
		t.Fatalf("want 1 save, got %d", saver.count())
	}
}

func TestRoom_ConcurrentDuplicatesCommitOnce(t *testing.T) {
	r, saver, _ := newTestRoom(t)

	const n = 16
	results := make([]Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			res, err := r.Submit(ctx, engine.PickCommand{DrafterID: "alice", PlayerID: "qb1", Token: "same"})
			if err != nil {
				res.Err = err
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("submission %d failed: %v", i, res.Err)
		}
		if res.Pick.Sequence != 1 {
			t.Fatalf("submission %d: want sequence 1, got %d", i, res.Pick.Sequence)
		}
		if !res.Duplicate {
			fresh++
		}
	}
	if fresh != 1 {
		t.Fatalf("want exactly one committed submission, got %d", fresh)
	}
	if saver.count() != 1 {
		t.Fatalf("want 1 save, got %d", saver.count())
	}
}

func TestRoom_StorageFailureLeavesStateUnchanged(t *testing.T) {
	r, saver, pub := newTestRoom(t)
	saver.setErr(fmt.Errorf("save: %w", storage.ErrUnavailable))

	res := submit(t, r, "alice", "qb1", "t1")
	if !errors.Is(res.Err, storage.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", res.Err)
	}
	recvNoEvents(t, pub.ch, 50*time.Millisecond)

	s := state(t, r)
	if len(s.Draft.Picks) != 0 || s.Draft.Status != engine.StatusPending || s.Draft.CurrentPickerID != "alice" {
		t.Fatalf("state changed after failed save: %+v", s.Draft)
	}

	// The same token is not remembered, so a retry goes through.
	saver.setErr(nil)
	res = submit(t, r, "alice", "qb1", "t1")
	if res.Err != nil || res.Duplicate || res.Pick.Sequence != 1 {
		t.Fatalf("retry: unexpected %+v", res)
	}
}

func TestRoom_CompletionPublishesBothEvents(t *testing.T) {
	r, _, pub := newTestRoom(t)

	submit(t, r, "alice", "qb1", "t1")
	submit(t, r, "bob", "qb2", "t2")
	submit(t, r, "alice", "rb1", "t3")
	res := submit(t, r, "bob", "rb2", "t4")
	if res.Err != nil {
		t.Fatalf("final pick: %v", res.Err)
	}

	var last []engine.Event
	for i := 0; i < 4; i++ {
		last = recvEvents(t, pub.ch, 100*time.Millisecond)
	}
	if len(last) != 2 || last[1].Type != engine.EvtDraftCompleted {
		t.Fatalf("want pick_made + draft_completed, got %+v", last)
	}
	if len(last[1].Rosters) != 2 {
		t.Fatalf("want rosters for both drafters, got %+v", last[1].Rosters)
	}

	late := submit(t, r, "alice", "qb1", "t5")
	if !errors.Is(late.Err, engine.ErrDraftNotActive) {
		t.Fatalf("want ErrDraftNotActive, got %v", late.Err)
	}
}

func TestRoom_ConflictStopsRoom(t *testing.T) {
	r, saver, _ := newTestRoom(t)
	saver.setErr(storage.ErrConflict)

	res := submit(t, r, "alice", "qb1", "t1")
	if !errors.Is(res.Err, storage.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", res.Err)
	}

	select {
	case <-r.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("room did not stop after conflict")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := r.Submit(ctx, engine.PickCommand{DrafterID: "alice", PlayerID: "qb2"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}

func TestRoom_ConcurrentDistinctSubmissionsCommitOnce(t *testing.T) {
	tests := []struct {
		name string
		cmds []engine.PickCommand
	}{
		{
			name: "both drafters want the same player",
			cmds: []engine.PickCommand{
				{DrafterID: "alice", PlayerID: "qb1", Token: "a"},
				{DrafterID: "bob", PlayerID: "qb1", Token: "b"},
			},
		},
		{
			name: "one drafter, different players",
			cmds: []engine.PickCommand{
				{DrafterID: "alice", PlayerID: "qb1", Token: "a1"},
				{DrafterID: "alice", PlayerID: "qb2", Token: "a2"},
				{DrafterID: "alice", PlayerID: "rb1", Token: "a3"},
				{DrafterID: "alice", PlayerID: "rb2", Token: "a4"},
			},
		},
		{
			name: "one player, many tokens",
			cmds: []engine.PickCommand{
				{DrafterID: "alice", PlayerID: "rb1", Token: "t1"},
				{DrafterID: "alice", PlayerID: "rb1", Token: "t2"},
				{DrafterID: "alice", PlayerID: "rb1", Token: "t3"},
				{DrafterID: "bob", PlayerID: "rb1", Token: "t4"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, saver, pub := newTestRoom(t)

			results := make([]Result, len(tc.cmds))
			start := make(chan struct{})
			var wg sync.WaitGroup
			for i, cmd := range tc.cmds {
				wg.Add(1)
				go func(i int, cmd engine.PickCommand) {
					defer wg.Done()
					<-start
					ctx, cancel := context.WithTimeout(context.Background(), time.Second)
					defer cancel()
					res, err := r.Submit(ctx, cmd)
					if err != nil {
						res.Err = err
					}
					results[i] = res
				}(i, cmd)
			}
			close(start)
			wg.Wait()

			committed := -1
			for i, res := range results {
				switch {
				case res.Err == nil:
					if res.Duplicate {
						t.Fatalf("submission %d: unexpected duplicate", i)
					}
					if committed >= 0 {
						t.Fatalf("submissions %d and %d both committed", committed, i)
					}
					committed = i
				case errors.Is(res.Err, engine.ErrNotYourTurn), errors.Is(res.Err, engine.ErrPlayerUnavailable):
				default:
					t.Fatalf("submission %d: unexpected error %v", i, res.Err)
				}
			}
			if committed < 0 {
				t.Fatalf("no submission committed")
			}

			want := tc.cmds[committed]
			if results[committed].Pick.Sequence != 1 || results[committed].Pick.PlayerID != want.PlayerID {
				t.Fatalf("committed pick %+v does not match %+v", results[committed].Pick, want)
			}
			if saver.count() != 1 {
				t.Fatalf("want 1 save, got %d", saver.count())
			}
			recvEvents(t, pub.ch, 100*time.Millisecond)
			recvNoEvents(t, pub.ch, 50*time.Millisecond)

			s := state(t, r)
			if len(s.Draft.Picks) != 1 || s.Draft.Picks[0].Token != want.Token {
				t.Fatalf("state holds %+v, want only token %s", s.Draft.Picks, want.Token)
			}
		})
	}
}
