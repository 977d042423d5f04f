// Package client is the draft client: a reconciled local view of a draft and
// a watcher that keeps it in sync over the draft channel.
package client

import (
	"github.com/DoyleJ11/duel-draft-backend/pkg/types"
)

type Outcome int

const (
	// OutcomeApplied means the delta advanced the view.
	OutcomeApplied Outcome = iota
	// OutcomeStale means the view already contained the delta.
	OutcomeStale
	// OutcomeGap means at least one delta is missing; the view is unchanged
	// and must be rebuilt from a fresh snapshot.
	OutcomeGap
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeStale:
		return "stale"
	case OutcomeGap:
		return "gap"
	}
	return "unknown"
}

// View is the client-side reconstruction of a draft. It only moves forward
// on server deltas; nothing is applied optimistically.
type View struct {
	Draft        types.Draft
	Participants []types.Participant
	Picks        []types.Pick
	Available    []types.Player
	LastSequence int
	Rosters      types.Rosters
}

func FromSnapshot(s types.Snapshot) *View {
	v := &View{
		Draft:        s.Draft,
		Participants: append([]types.Participant(nil), s.Participants...),
		Picks:        append([]types.Pick(nil), s.Picks...),
		Available:    append([]types.Player(nil), s.AvailablePlayers...),
		LastSequence: s.LastSequence,
	}
	if v.Draft.CurrentPickerID != nil {
		id := *v.Draft.CurrentPickerID
		v.Draft.CurrentPickerID = &id
	}
	return v
}

// Apply folds d into the view in sequence order.
func (v *View) Apply(d types.Delta) Outcome {
	switch d.Type {
	case types.DeltaPickMade:
		if d.Sequence <= v.LastSequence {
			return OutcomeStale
		}
		if d.Sequence != v.LastSequence+1 || d.Pick == nil {
			return OutcomeGap
		}
		v.Picks = append(v.Picks, *d.Pick)
		v.removeAvailable(d.Pick.PlayerID)
		v.LastSequence = d.Sequence
		if v.Draft.Status == "pending" {
			v.Draft.Status = "active"
		}
		v.Draft.CurrentPickerID = nil
		if d.NextPickerID != nil {
			id := *d.NextPickerID
			v.Draft.CurrentPickerID = &id
		}
		return OutcomeApplied

	case types.DeltaDraftCompleted:
		if v.Draft.Status == "completed" || d.Sequence < v.LastSequence {
			return OutcomeStale
		}
		if d.Sequence > v.LastSequence {
			return OutcomeGap
		}
		v.Draft.Status = "completed"
		v.Draft.CurrentPickerID = nil
		v.Rosters = d.Rosters
		return OutcomeApplied
	}
	return OutcomeStale
}

// CurrentPicker returns "" once the draft is over.
func (v *View) CurrentPicker() string {
	if v.Draft.CurrentPickerID == nil {
		return ""
	}
	return *v.Draft.CurrentPickerID
}

func (v *View) Completed() bool { return v.Draft.Status == "completed" }

func (v *View) Clone() *View {
	c := *v
	c.Participants = append([]types.Participant(nil), v.Participants...)
	c.Picks = append([]types.Pick(nil), v.Picks...)
	c.Available = append([]types.Player(nil), v.Available...)
	if v.Draft.CurrentPickerID != nil {
		id := *v.Draft.CurrentPickerID
		c.Draft.CurrentPickerID = &id
	}
	return &c
}

func (v *View) removeAvailable(playerID string) {
	for i, p := range v.Available {
		if p.ID == playerID {
			v.Available = append(v.Available[:i], v.Available[i+1:]...)
			return
		}
	}
}
