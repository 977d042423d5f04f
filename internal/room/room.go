// Package room serializes every pick for a draft through a single actor.
package room

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/duel-draft-backend/internal/engine"
	"github.com/DoyleJ11/duel-draft-backend/internal/metrics"
	"github.com/DoyleJ11/duel-draft-backend/internal/storage"
)

var ErrClosed = errors.New("room closed")

const (
	defaultInboxSize   = 64
	defaultSaveTimeout = 5 * time.Second
)

type Msg interface{ isRoomMsg() }

type Submit struct {
	Cmd   engine.PickCommand
	Reply chan Result
}

func (Submit) isRoomMsg() {}

type GetState struct {
	Reply chan engine.State
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// Result answers a Submit. Duplicate is set when the idempotency token was
// already committed; Pick is then the original pick.
type Result struct {
	Pick      engine.Pick
	Duplicate bool
	Err       error
}

type Saver interface {
	SaveDraftAfterPick(ctx context.Context, d engine.Draft, p engine.Pick) error
}

// Publisher receives the events of every committed pick, in commit order.
// It must not block.
type Publisher interface {
	Publish(draftID string, events []engine.Event)
}

type Options struct {
	Saver       Saver
	Publisher   Publisher
	Logger      *zap.SugaredLogger
	InboxSize   int
	SaveTimeout time.Duration
	Now         func() time.Time
	// OnStale is called from its own goroutine when a save conflict shows
	// the in-memory state no longer matches storage. The room has stopped.
	// A Manager unregisters the room before calling it.
	OnStale func(r *Room)
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	if o.InboxSize <= 0 {
		o.InboxSize = defaultInboxSize
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = defaultSaveTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Room struct {
	id     string
	inbox  chan Msg
	state  engine.State
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRoom(parent context.Context, initial engine.State, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	opts = opts.withDefaults()

	r := &Room{
		id:     initial.Draft.ID,
		inbox:  make(chan Msg, opts.InboxSize),
		state:  initial,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Submit sends cmd through the room and waits for the outcome.
func (r *Room) Submit(ctx context.Context, cmd engine.PickCommand) (Result, error) {
	reply := make(chan Result, 1)
	select {
	case r.inbox <- Submit{Cmd: cmd, Reply: reply}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-r.ctx.Done():
		return Result{}, ErrClosed
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-r.ctx.Done():
		return Result{}, ErrClosed
	}
}

// State returns a copy of the room's current state.
func (r *Room) State(ctx context.Context) (engine.State, error) {
	reply := make(chan engine.State, 1)
	select {
	case r.inbox <- GetState{Reply: reply}:
	case <-ctx.Done():
		return engine.State{}, ctx.Err()
	case <-r.ctx.Done():
		return engine.State{}, ErrClosed
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return engine.State{}, ctx.Err()
	case <-r.ctx.Done():
		return engine.State{}, ErrClosed
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Submit:
				res, stale := r.submit(msg.Cmd)
				msg.Reply <- res
				if stale {
					r.cancel()
					if r.opts.OnStale != nil {
						go r.opts.OnStale(r)
					}
					return
				}

			case GetState:
				msg.Reply <- r.snapshot()

			case Shutdown:
				r.cancel()
				return
			}
		}
	}
}

func (r *Room) submit(cmd engine.PickCommand) (Result, bool) {
	log := r.opts.Logger.With("draft_id", r.id, "drafter_id", cmd.DrafterID, "player_id", cmd.PlayerID)

	if pick, ok := r.state.PickByToken(cmd.Token); ok {
		log.Debugw("duplicate pick submission", "sequence", pick.Sequence)
		metrics.ObservePick("duplicate", "")
		return Result{Pick: pick, Duplicate: true}, false
	}

	if cmd.At.IsZero() {
		cmd.At = r.opts.Now().UTC()
	}
	events, next, err := engine.Apply(r.state, cmd)
	if err != nil {
		log.Debugw("pick rejected", "error", err)
		metrics.ObservePick("rejected", err.Error())
		return Result{Err: err}, false
	}
	pick := next.Draft.Picks[len(next.Draft.Picks)-1]

	ctx, cancel := context.WithTimeout(r.ctx, r.opts.SaveTimeout)
	start := time.Now()
	err = r.opts.Saver.SaveDraftAfterPick(ctx, next.Draft, pick)
	cancel()
	metrics.ObserveSave(start, err)
	if err != nil {
		log.Errorw("failed to persist pick", "sequence", pick.Sequence, "error", err)
		metrics.ObservePick("rejected", "storage")
		return Result{Err: err}, errors.Is(err, storage.ErrConflict)
	}

	r.state = next
	if r.opts.Publisher != nil {
		r.opts.Publisher.Publish(r.id, events)
	}
	log.Debugw("pick committed", "sequence", pick.Sequence, "status", next.Draft.Status)
	metrics.ObservePick("accepted", "")
	return Result{Pick: pick}, false
}

// snapshot copies the picks so readers never share the room's backing array.
func (r *Room) snapshot() engine.State {
	s := r.state
	s.Draft.Picks = make([]engine.Pick, len(r.state.Draft.Picks))
	copy(s.Draft.Picks, r.state.Draft.Picks)
	return s
}
