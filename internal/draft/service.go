// Package draft wires storage, per-draft rooms and the connection hub into
// the operations the transport layers expose.
package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/DoyleJ11/duel-draft-backend/internal/engine"
	"github.com/DoyleJ11/duel-draft-backend/internal/league"
	"github.com/DoyleJ11/duel-draft-backend/internal/room"
	"github.com/DoyleJ11/duel-draft-backend/internal/storage"
	"github.com/DoyleJ11/duel-draft-backend/pkg/types"
)

var (
	ErrForbidden      = errors.New("drafter does not match authenticated user")
	ErrDraftMismatch  = errors.New("draft id does not match request path")
	ErrPairIncomplete = errors.New("pair does not have two members")
	ErrBadRequest     = errors.New("drafter id and player id are required")
)

// Broadcaster is the slice of the hub the service needs.
type Broadcaster interface {
	Broadcast(draftID string, deltas ...types.Delta)
	// Resync makes every subscriber of the draft fetch a fresh snapshot.
	Resync(draftID string)
}

type Options struct {
	Store       storage.Store
	Hub         Broadcaster
	Logger      *zap.SugaredLogger
	Capacity    int
	InboxSize   int
	SaveTimeout time.Duration
	Now         func() time.Time
	NewID       func() string
}

type Service struct {
	store    storage.Store
	hub      Broadcaster
	rooms    *room.Manager
	loads    singleflight.Group
	logger   *zap.SugaredLogger
	capacity int
	now      func() time.Time
	newID    func() string
}

func NewService(ctx context.Context, opts Options) *Service {
	s := &Service{
		store:    opts.Store,
		hub:      opts.Hub,
		logger:   opts.Logger,
		capacity: opts.Capacity,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	if s.capacity <= 0 {
		s.capacity = league.DefaultCapacity
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	s.rooms = room.NewManager(ctx, room.Options{
		Saver:       opts.Store,
		Publisher:   s,
		Logger:      s.logger,
		InboxSize:   opts.InboxSize,
		SaveTimeout: opts.SaveTimeout,
		Now:         s.now,
		OnStale:     s.stale,
	})
	return s
}

// stale runs once a room found storage ahead of it. Picks committed by the
// other writer were never broadcast from here, so subscribers start over
// from a snapshot.
func (s *Service) stale(r *room.Room) {
	s.logger.Warnw("draft state was stale, resyncing subscribers", "draft_id", r.ID())
	if s.hub != nil {
		s.hub.Resync(r.ID())
	}
}

// Publish forwards committed events to every subscriber of the draft.
func (s *Service) Publish(draftID string, events []engine.Event) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(draftID, Deltas(events)...)
}

func (s *Service) Close() {
	s.rooms.Shutdown()
}

// CreatePairs pairs a full league and stores the result.
func (s *Service) CreatePairs(ctx context.Context, leagueID string) ([]league.Pair, error) {
	existing, err := s.store.LoadPairs(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.LoadLeagueMembers(ctx, leagueID)
	if err != nil {
		return nil, err
	}

	pairs, err := league.Generate(members, league.Options{
		Capacity:      s.capacity,
		AlreadyPaired: len(existing) > 0,
	})
	if err != nil {
		return nil, err
	}
	for i := range pairs {
		pairs[i].ID = s.newID()
		pairs[i].LeagueID = leagueID
	}

	if err := s.store.SavePairs(ctx, leagueID, pairs); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, league.ErrAlreadyPaired
		}
		return nil, err
	}
	s.logger.Infow("league paired", "league_id", leagueID, "pairs", len(pairs))
	return pairs, nil
}

func (s *Service) Pairs(ctx context.Context, leagueID string) ([]league.Pair, error) {
	return s.store.LoadPairs(ctx, leagueID)
}

// StartDraft returns the draft of a pair, creating it on first call.
// created reports whether this call created it.
func (s *Service) StartDraft(ctx context.Context, pairID string) (d engine.Draft, created bool, err error) {
	d, err = s.store.LoadDraftByPair(ctx, pairID)
	if err == nil {
		return d, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return engine.Draft{}, false, err
	}

	pair, err := s.store.LoadPair(ctx, pairID)
	if err != nil {
		return engine.Draft{}, false, err
	}
	ids := pair.MemberIDs()
	if ids[0] == "" || ids[1] == "" || ids[0] == ids[1] {
		return engine.Draft{}, false, ErrPairIncomplete
	}

	d = engine.NewDraft(s.newID(), pair.ID, pair.LeagueID, pair.PoolIndex, ids, s.now().UTC())
	if err := s.store.CreateDraft(ctx, d); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Lost a race with a concurrent start.
			d, err = s.store.LoadDraftByPair(ctx, pairID)
			return d, false, err
		}
		return engine.Draft{}, false, err
	}
	s.logger.Infow("draft started", "draft_id", d.ID, "pair_id", pair.ID, "first_picker", d.CurrentPickerID)
	return d, true, nil
}

func (s *Service) Snapshot(ctx context.Context, draftID string) (types.Snapshot, error) {
	st, err := s.State(ctx, draftID)
	if err != nil {
		return types.Snapshot{}, err
	}
	pair, err := s.store.LoadPair(ctx, st.Draft.PairID)
	if err != nil {
		return types.Snapshot{}, err
	}
	members := make([]league.Member, 0, 2)
	for _, m := range pair.Members {
		if m.UserID != "" {
			members = append(members, m)
		}
	}
	return SnapshotOf(st, members), nil
}

func (s *Service) Rosters(ctx context.Context, draftID string) (types.Rosters, error) {
	st, err := s.State(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return RostersToWire(st.Rosters()), nil
}

// State returns the authoritative in-memory state of a draft.
func (s *Service) State(ctx context.Context, draftID string) (engine.State, error) {
	for attempt := 0; ; attempt++ {
		r, err := s.room(ctx, draftID)
		if err != nil {
			return engine.State{}, err
		}
		st, err := r.State(ctx)
		if errors.Is(err, room.ErrClosed) && attempt == 0 {
			continue
		}
		return st, err
	}
}

// SubmitPick runs a pick through the draft's room. identity is the verified
// caller; an empty identity skips the check. Validation failures are not
// errors: they come back as accepted=false with a reason.
func (s *Service) SubmitPick(ctx context.Context, draftID, identity string, req types.PickRequest) (types.PickResponse, error) {
	if req.DraftID != "" && req.DraftID != draftID {
		return types.PickResponse{}, ErrDraftMismatch
	}
	if req.DrafterID == "" || req.PlayerID == "" {
		return types.PickResponse{}, ErrBadRequest
	}
	if identity != "" && req.DrafterID != identity {
		return types.PickResponse{}, ErrForbidden
	}

	cmd := engine.PickCommand{
		DrafterID: req.DrafterID,
		PlayerID:  req.PlayerID,
		Token:     req.IdempotencyToken,
	}
	if cmd.Token == "" {
		cmd.Token = engine.DefaultToken(draftID, req.PlayerID, req.DrafterID)
	}

	// A conflict means storage moved past the room. The retry runs on a room
	// reloaded from storage, where an already committed token is a duplicate.
	var res room.Result
	for attempt := 0; ; attempt++ {
		r, err := s.room(ctx, draftID)
		if err != nil {
			return types.PickResponse{}, err
		}
		res, err = r.Submit(ctx, cmd)
		if attempt == 0 && errors.Is(err, room.ErrClosed) {
			continue
		}
		if err != nil {
			return types.PickResponse{}, err
		}
		if attempt == 0 && errors.Is(res.Err, storage.ErrConflict) {
			s.logger.Infow("pick conflicted with storage, retrying on a fresh room", "draft_id", draftID, "drafter_id", cmd.DrafterID)
			s.rooms.Remove(r)
			continue
		}
		break
	}

	if res.Err != nil {
		reason, ok := Reason(res.Err)
		if !ok {
			return types.PickResponse{}, res.Err
		}
		resp := types.PickResponse{Accepted: false, Reason: reason}
		if reason == types.ReasonStorageUnavailable {
			return resp, fmt.Errorf("submit pick: %w", storage.ErrUnavailable)
		}
		return resp, nil
	}

	pick := PickToWire(res.Pick)
	return types.PickResponse{Accepted: true, Pick: &pick, Duplicate: res.Duplicate}, nil
}

// Reason maps a pick failure to its wire reason.
func Reason(err error) (types.ErrorKind, bool) {
	switch {
	case errors.Is(err, engine.ErrNotYourTurn):
		return types.ReasonNotYourTurn, true
	case errors.Is(err, engine.ErrDraftNotActive):
		return types.ReasonDraftNotActive, true
	case errors.Is(err, engine.ErrPlayerUnavailable):
		return types.ReasonPlayerUnavailable, true
	case errors.Is(err, engine.ErrRosterFull):
		return types.ReasonRosterFull, true
	case errors.Is(err, storage.ErrUnavailable),
		errors.Is(err, storage.ErrConflict),
		errors.Is(err, context.DeadlineExceeded):
		return types.ReasonStorageUnavailable, true
	}
	return "", false
}

// room returns the live room of a draft, loading it from storage at most
// once per draft at a time.
func (s *Service) room(ctx context.Context, draftID string) (*room.Room, error) {
	r, err := s.rooms.Get(ctx, draftID)
	if err != nil || r != nil {
		return r, err
	}

	v, err, _ := s.loads.Do(draftID, func() (any, error) {
		d, err := s.store.LoadDraft(ctx, draftID)
		if err != nil {
			return nil, err
		}
		players, err := s.store.LoadPlayersByPool(ctx, d.PoolIndex)
		if err != nil {
			return nil, err
		}
		s.logger.Debugw("room loaded", "draft_id", draftID, "picks", len(d.Picks), "players", len(players))
		return s.rooms.Ensure(ctx, engine.NewState(d, players))
	})
	if err != nil {
		return nil, err
	}
	return v.(*room.Room), nil
}
