package engine

import (
	"errors"
	"time"
)

var ErrNotYourTurn = errors.New("not your turn")
var ErrDraftNotActive = errors.New("draft not active")
var ErrPlayerUnavailable = errors.New("player unavailable")
var ErrRosterFull = errors.New("roster full")

type Position string

const (
	PosQB  Position = "QB"
	PosRB  Position = "RB"
	PosWR  Position = "WR"
	PosTE  Position = "TE"
	PosK   Position = "K"
	PosDEF Position = "DEF"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Player is an immutable catalog record. Lower CompositeRank is better.
type Player struct {
	ID             string
	Name           string
	Team           string
	Position       Position
	Age            int
	CompositeRank  float64
	PoolAssignment int
}

// Pick is immutable once committed. Token is the idempotency key it was
// submitted with and never leaves the server.
type Pick struct {
	Sequence  int
	DrafterID string
	PlayerID  string
	Timestamp time.Time
	Token     string
}

type Draft struct {
	ID              string
	PairID          string
	LeagueID        string
	PoolIndex       int
	Drafters        [2]string
	Status          Status
	CurrentPickerID string // empty once completed
	Picks           []Pick
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// State is everything the validator and state machine look at: the draft
// itself plus the players of its pool, keyed by id.
type State struct {
	Draft Draft
	Pool  map[string]Player
	Rules Rules
}

type Rules struct {
	// Spots overrides DefaultRosterSpots when non-nil.
	Spots map[Slot]int
}

type PickCommand struct {
	DrafterID string
	PlayerID  string
	Token     string
	At        time.Time
}

/*
	PickCommand -> EvtPickMade                       (turn passes, or stays when the other roster is full)
	PickCommand -> EvtPickMade -> EvtDraftCompleted  (nobody can pick anymore)
*/

type EventType string

const (
	EvtPickMade       EventType = "pick_made"
	EvtDraftCompleted EventType = "draft_completed"
)

type Event struct {
	Type         EventType
	Pick         Pick
	NextPickerID string
	Rosters      map[string]Roster
}

// Apply validates cmd against s and returns the events it produced together
// with the next state. s is never modified; on error it is returned as is.
func Apply(s State, cmd PickCommand) ([]Event, State, error) {
	if err := Validate(s, cmd.DrafterID, cmd.PlayerID); err != nil {
		return nil, s, err
	}

	next := s.clone()
	pick := Pick{
		Sequence:  len(s.Draft.Picks) + 1,
		DrafterID: cmd.DrafterID,
		PlayerID:  cmd.PlayerID,
		Timestamp: cmd.At,
		Token:     cmd.Token,
	}
	next.Draft.Picks = append(next.Draft.Picks, pick)
	if next.Draft.Status == StatusPending {
		next.Draft.Status = StatusActive
	}

	picker, ok := next.nextPicker(cmd.DrafterID)
	if !ok {
		completedAt := cmd.At
		next.Draft.Status = StatusCompleted
		next.Draft.CurrentPickerID = ""
		next.Draft.CompletedAt = &completedAt

		events := []Event{
			{Type: EvtPickMade, Pick: pick},
			{Type: EvtDraftCompleted, Pick: pick, Rosters: next.Rosters()},
		}
		return events, next, nil
	}

	next.Draft.CurrentPickerID = picker
	return []Event{{Type: EvtPickMade, Pick: pick, NextPickerID: picker}}, next, nil
}

// nextPicker applies the skip-when-full rule: the turn goes to the other
// drafter unless they cannot pick anymore, in which case the same drafter
// picks again. ok is false when neither can pick.
func (s State) nextPicker(justPicked string) (string, bool) {
	other := s.Other(justPicked)
	if s.CanPick(other) {
		return other, true
	}
	if s.CanPick(justPicked) {
		return justPicked, true
	}
	return "", false
}

func (s State) clone() State {
	next := s
	next.Draft.Picks = make([]Pick, len(s.Draft.Picks), len(s.Draft.Picks)+1)
	copy(next.Draft.Picks, s.Draft.Picks)
	if s.Draft.CompletedAt != nil {
		at := *s.Draft.CompletedAt
		next.Draft.CompletedAt = &at
	}
	return next
}
