// Package hub fans draft deltas out to every connection subscribed to a draft.
package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/duel-draft-backend/internal/metrics"
	"github.com/DoyleJ11/duel-draft-backend/pkg/types"
)

const (
	defaultInboxSize  = 256
	DefaultOutboxSize = 32
)

type HubMsg interface{ isHubMsg() }

// Subscriber is one live connection. The hub owns Outbox once subscribed and
// closes it when the subscriber is removed for any reason.
type Subscriber struct {
	ID        string
	DraftID   string
	DrafterID string
	Outbox    chan types.Delta
}

func NewSubscriber(id, draftID, drafterID string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultOutboxSize
	}
	return &Subscriber{
		ID:        id,
		DraftID:   draftID,
		DrafterID: drafterID,
		Outbox:    make(chan types.Delta, buffer),
	}
}

type Subscribe struct {
	Sub  *Subscriber
	Done chan struct{} // closed once the subscriber is registered
}

type Unsubscribe struct {
	DraftID      string
	SubscriberID string
}

type Broadcast struct {
	DraftID string
	Deltas  []types.Delta
}

type Count struct {
	DraftID string
	Reply   chan int
}

// Resync drops every subscriber of a draft so each one reconnects and
// fetches a fresh snapshot.
type Resync struct {
	DraftID string
}

type ShutdownHub struct{}

func (Subscribe) isHubMsg()   {}
func (Unsubscribe) isHubMsg() {}
func (Broadcast) isHubMsg()   {}
func (Count) isHubMsg()       {}
func (Resync) isHubMsg()      {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	subs   map[string]map[string]*Subscriber // draft id -> subscriber id
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.SugaredLogger

	// lost holds drafts whose deltas were dropped at a full inbox. The loop
	// drains it on every wake.
	mu   sync.Mutex
	lost map[string]struct{}
	wake chan struct{}
}

func NewHub(parent context.Context, logger *zap.SugaredLogger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, defaultInboxSize),
		subs:   make(map[string]map[string]*Subscriber),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		lost:   make(map[string]struct{}),
		wake:   make(chan struct{}, 1),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Subscribe registers sub and returns once it will receive every later
// broadcast for its draft.
func (h *Hub) Subscribe(ctx context.Context, sub *Subscriber) error {
	done := make(chan struct{})
	select {
	case h.inbox <- Subscribe{Sub: sub, Done: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

// Unsubscribe is idempotent.
func (h *Hub) Unsubscribe(draftID, subscriberID string) {
	select {
	case h.inbox <- Unsubscribe{DraftID: draftID, SubscriberID: subscriberID}:
	case <-h.ctx.Done():
	}
}

// Broadcast never blocks the caller. If the hub itself is backed up the
// deltas are dropped and every subscriber of the draft is closed, so none
// is left waiting on a delta that will never come.
func (h *Hub) Broadcast(draftID string, deltas ...types.Delta) {
	if len(deltas) == 0 {
		return
	}
	select {
	case h.inbox <- Broadcast{DraftID: draftID, Deltas: deltas}:
	case <-h.ctx.Done():
	default:
		h.logger.Warnw("hub inbox full, dropping deltas", "draft_id", draftID, "count", len(deltas))
		h.markLost(draftID)
	}
}

// Resync closes every subscriber of draftID.
func (h *Hub) Resync(draftID string) {
	select {
	case h.inbox <- Resync{DraftID: draftID}:
	case <-h.ctx.Done():
	default:
		h.markLost(draftID)
	}
}

func (h *Hub) markLost(draftID string) {
	h.mu.Lock()
	h.lost[draftID] = struct{}{}
	h.mu.Unlock()
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Count reports the live subscribers of a draft.
func (h *Hub) Count(ctx context.Context, draftID string) (int, error) {
	reply := make(chan int, 1)
	select {
	case h.inbox <- Count{DraftID: draftID, Reply: reply}:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-h.ctx.Done():
		return 0, h.ctx.Err()
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-h.wake:
			h.mu.Lock()
			lost := h.lost
			h.lost = make(map[string]struct{})
			h.mu.Unlock()
			for draftID := range lost {
				h.dropAll(draftID, "deltas lost")
			}

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Subscribe:
				// A reused id replaces the stale registration.
				h.remove(msg.Sub.DraftID, msg.Sub.ID)
				subs := h.subs[msg.Sub.DraftID]
				if subs == nil {
					subs = make(map[string]*Subscriber)
					h.subs[msg.Sub.DraftID] = subs
				}
				subs[msg.Sub.ID] = msg.Sub
				metrics.AddSubscribers(1)
				h.logger.Debugw("subscribed", "draft_id", msg.Sub.DraftID, "subscriber_id", msg.Sub.ID, "drafter_id", msg.Sub.DrafterID)
				close(msg.Done)

			case Unsubscribe:
				h.remove(msg.DraftID, msg.SubscriberID)

			case Broadcast:
				h.broadcast(msg.DraftID, msg.Deltas)

			case Count:
				msg.Reply <- len(h.subs[msg.DraftID])

			case Resync:
				h.dropAll(msg.DraftID, "resync")

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) broadcast(draftID string, deltas []types.Delta) {
	for id, sub := range h.subs[draftID] {
		for _, d := range deltas {
			select {
			case sub.Outbox <- d:
				continue
			default:
			}
			// Subscriber is slow/full - drop it. It resyncs on reconnect.
			h.logger.Warnw("dropping slow subscriber", "draft_id", draftID, "subscriber_id", id, "sequence", d.Sequence)
			metrics.SubscriberDropped()
			h.remove(draftID, id)
			break
		}
	}
}

func (h *Hub) dropAll(draftID, reason string) {
	subs := h.subs[draftID]
	if len(subs) == 0 {
		return
	}
	h.logger.Infow("closing draft subscribers", "draft_id", draftID, "count", len(subs), "reason", reason)
	for id := range subs {
		h.remove(draftID, id)
	}
}

func (h *Hub) remove(draftID, subscriberID string) {
	subs := h.subs[draftID]
	sub, ok := subs[subscriberID]
	if !ok {
		return
	}
	close(sub.Outbox)
	delete(subs, subscriberID)
	if len(subs) == 0 {
		delete(h.subs, draftID)
	}
	metrics.AddSubscribers(-1)
}

func (h *Hub) shutdown() {
	for draftID, subs := range h.subs {
		for id := range subs {
			h.remove(draftID, id)
		}
	}
	h.cancel()
}
