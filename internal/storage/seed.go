package storage

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/DoyleJ11/duel-draft-backend/internal/engine"
	"github.com/DoyleJ11/duel-draft-backend/internal/league"
)

// Seed is the JSON document that fills a MemoryStore for local runs.
type Seed struct {
	Leagues map[string][]SeedMember `json:"leagues"`
	Players []SeedPlayer            `json:"players"`
}

type SeedMember struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type SeedPlayer struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Team           string  `json:"team"`
	Position       string  `json:"position"`
	Age            int     `json:"age"`
	CompositeRank  float64 `json:"compositeRank"`
	PoolAssignment int     `json:"poolAssignment"`
}

// LoadSeed adds every league member and player in the document at r.
func (m *MemoryStore) LoadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}

	for _, p := range seed.Players {
		if p.ID == "" {
			return Seed{}, fmt.Errorf("seed player without id")
		}
	}
	for leagueID, members := range seed.Leagues {
		out := make([]league.Member, 0, len(members))
		for _, sm := range members {
			if sm.UserID == "" {
				return Seed{}, fmt.Errorf("seed league %s: member without userId", leagueID)
			}
			out = append(out, league.Member{UserID: sm.UserID, DisplayName: sm.DisplayName, Email: sm.Email})
		}
		m.AddMembers(leagueID, out...)
	}
	for _, p := range seed.Players {
		m.AddPlayers(engine.Player{
			ID:             p.ID,
			Name:           p.Name,
			Team:           p.Team,
			Position:       engine.Position(p.Position),
			Age:            p.Age,
			CompositeRank:  p.CompositeRank,
			PoolAssignment: p.PoolAssignment,
		})
	}
	return seed, nil
}
