package engine

import (
	"sort"
	"time"
)

// NewDraft builds a pending draft for a pair. The lexicographically smaller
// drafter id picks first.
func NewDraft(id, pairID, leagueID string, poolIndex int, drafters [2]string, createdAt time.Time) Draft {
	if drafters[1] < drafters[0] {
		drafters[0], drafters[1] = drafters[1], drafters[0]
	}
	return Draft{
		ID:              id,
		PairID:          pairID,
		LeagueID:        leagueID,
		PoolIndex:       poolIndex,
		Drafters:        drafters,
		Status:          StatusPending,
		CurrentPickerID: drafters[0],
		Picks:           []Pick{},
		CreatedAt:       createdAt,
	}
}

// NewState indexes the pool players that belong to the draft's pool.
func NewState(d Draft, players []Player) State {
	pool := make(map[string]Player, len(players))
	for _, p := range players {
		if p.PoolAssignment == d.PoolIndex {
			pool[p.ID] = p
		}
	}
	return State{Draft: d, Pool: pool}
}

// DefaultToken is the idempotency key used when a client does not send one.
func DefaultToken(draftID, playerID, drafterID string) string {
	return draftID + ":" + playerID + ":" + drafterID
}

func (s State) LastSequence() int {
	return len(s.Draft.Picks)
}

func (s State) Other(drafterID string) string {
	if s.Draft.Drafters[0] == drafterID {
		return s.Draft.Drafters[1]
	}
	return s.Draft.Drafters[0]
}

func (s State) Picked(playerID string) bool {
	for _, p := range s.Draft.Picks {
		if p.PlayerID == playerID {
			return true
		}
	}
	return false
}

func (s State) PickByToken(token string) (Pick, bool) {
	if token == "" {
		return Pick{}, false
	}
	for _, p := range s.Draft.Picks {
		if p.Token == token {
			return p, true
		}
	}
	return Pick{}, false
}

func (s State) PicksBy(drafterID string) []Pick {
	var picks []Pick
	for _, p := range s.Draft.Picks {
		if p.DrafterID == drafterID {
			picks = append(picks, p)
		}
	}
	return picks
}

func (s State) Roster(drafterID string) Roster {
	return BuildRoster(s.Rules, s.PicksBy(drafterID), s.Pool)
}

func (s State) Rosters() map[string]Roster {
	return map[string]Roster{
		s.Draft.Drafters[0]: s.Roster(s.Draft.Drafters[0]),
		s.Draft.Drafters[1]: s.Roster(s.Draft.Drafters[1]),
	}
}

// CanPick reports whether drafterID still has an open slot that at least one
// available player could fill.
func (s State) CanPick(drafterID string) bool {
	roster := s.Roster(drafterID)
	if roster.Full(s.Rules) {
		return false
	}
	for _, p := range s.Pool {
		if s.Picked(p.ID) {
			continue
		}
		if _, ok := roster.Place(s.Rules, p.Position); ok {
			return true
		}
	}
	return false
}

// Available is the derived pool view, ordered by composite rank then id.
func (s State) Available() []Player {
	picked := make(map[string]bool, len(s.Draft.Picks))
	for _, p := range s.Draft.Picks {
		picked[p.PlayerID] = true
	}

	out := make([]Player, 0, len(s.Pool))
	for _, p := range s.Pool {
		if !picked[p.ID] {
			out = append(out, p)
		}
	}
	SortPlayers(out)
	return out
}

func SortPlayers(players []Player) {
	sort.Slice(players, func(i, j int) bool {
		if players[i].CompositeRank != players[j].CompositeRank {
			return players[i].CompositeRank < players[j].CompositeRank
		}
		return players[i].ID < players[j].ID
	})
}
