package draft

import (
	"github.com/DoyleJ11/duel-draft-backend/internal/engine"
	"github.com/DoyleJ11/duel-draft-backend/internal/league"
	"github.com/DoyleJ11/duel-draft-backend/pkg/types"
)

// Deltas converts committed engine events into the deltas pushed to
// subscribers. Every delta carries the sequence of the pick behind it.
func Deltas(events []engine.Event) []types.Delta {
	out := make([]types.Delta, 0, len(events))
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtPickMade:
			pick := PickToWire(ev.Pick)
			out = append(out, types.Delta{
				Type:         types.DeltaPickMade,
				Sequence:     ev.Pick.Sequence,
				Pick:         &pick,
				NextPickerID: optional(ev.NextPickerID),
			})
		case engine.EvtDraftCompleted:
			out = append(out, types.Delta{
				Type:     types.DeltaDraftCompleted,
				Sequence: ev.Pick.Sequence,
				Rosters:  RostersToWire(ev.Rosters),
			})
		}
	}
	return out
}

func PickToWire(p engine.Pick) types.Pick {
	return types.Pick{
		Sequence:  p.Sequence,
		DrafterID: p.DrafterID,
		PlayerID:  p.PlayerID,
		Timestamp: p.Timestamp,
	}
}

func PlayerToWire(p engine.Player) types.Player {
	return types.Player{
		ID:             p.ID,
		Name:           p.Name,
		Team:           p.Team,
		Position:       string(p.Position),
		Age:            p.Age,
		CompositeRank:  p.CompositeRank,
		PoolAssignment: p.PoolAssignment,
	}
}

func DraftToWire(d engine.Draft) types.Draft {
	return types.Draft{
		ID:              d.ID,
		PairID:          d.PairID,
		LeagueID:        d.LeagueID,
		PoolIndex:       d.PoolIndex,
		Status:          string(d.Status),
		CurrentPickerID: optional(d.CurrentPickerID),
		CreatedAt:       d.CreatedAt,
		CompletedAt:     d.CompletedAt,
	}
}

func RostersToWire(rosters map[string]engine.Roster) types.Rosters {
	out := make(types.Rosters, len(rosters))
	for drafter, roster := range rosters {
		slots := make(map[string][]string, len(roster))
		for slot, ids := range roster {
			slots[string(slot)] = append([]string(nil), ids...)
		}
		out[drafter] = slots
	}
	return out
}

func MemberToWire(m league.Member) types.Participant {
	return types.Participant{UserID: m.UserID, DisplayName: m.DisplayName, Email: m.Email}
}

func PairToWire(p league.Pair) types.Pair {
	members := make([]types.Participant, 0, len(p.Members))
	for _, m := range p.Members {
		if m.UserID != "" {
			members = append(members, MemberToWire(m))
		}
	}
	return types.Pair{
		ID:        p.ID,
		LeagueID:  p.LeagueID,
		PoolIndex: p.PoolIndex,
		Members:   members,
		Drafted:   p.Drafted,
	}
}

func SnapshotOf(s engine.State, participants []league.Member) types.Snapshot {
	snap := types.Snapshot{
		Draft:            DraftToWire(s.Draft),
		Participants:     make([]types.Participant, 0, len(participants)),
		Picks:            make([]types.Pick, 0, len(s.Draft.Picks)),
		AvailablePlayers: []types.Player{},
		LastSequence:     s.LastSequence(),
	}
	for _, m := range participants {
		snap.Participants = append(snap.Participants, MemberToWire(m))
	}
	for _, p := range s.Draft.Picks {
		snap.Picks = append(snap.Picks, PickToWire(p))
	}
	for _, p := range s.Available() {
		snap.AvailablePlayers = append(snap.AvailablePlayers, PlayerToWire(p))
	}
	return snap
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
