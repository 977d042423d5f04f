// Package types is the wire contract shared by the server and draft clients.
// Field names are load-bearing: clients interoperate on them.
package types

import "time"

type Player struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Team           string  `json:"team"`
	Position       string  `json:"position"`
	Age            int     `json:"age"`
	CompositeRank  float64 `json:"compositeRank"`
	PoolAssignment int     `json:"poolAssignment"`
}

type Pick struct {
	Sequence  int       `json:"sequence"`
	DrafterID string    `json:"drafterId"`
	PlayerID  string    `json:"playerId"`
	Timestamp time.Time `json:"timestamp"`
}

type Participant struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}

type Draft struct {
	ID              string     `json:"id"`
	PairID          string     `json:"pairId"`
	LeagueID        string     `json:"leagueId"`
	PoolIndex       int        `json:"poolIndex"`
	Status          string     `json:"status"`
	CurrentPickerID *string    `json:"currentPickerId"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Snapshot is the full-state bootstrap payload for a draft.
type Snapshot struct {
	Draft            Draft         `json:"draft"`
	Participants     []Participant `json:"participants"`
	Picks            []Pick        `json:"picks"`
	AvailablePlayers []Player      `json:"availablePlayers"`
	LastSequence     int           `json:"lastSequence"`
}

// Rosters maps drafter id to slot to the player ids in that slot.
type Rosters map[string]map[string][]string

type Pair struct {
	ID        string        `json:"id"`
	LeagueID  string        `json:"leagueId"`
	PoolIndex int           `json:"poolIndex"`
	Members   []Participant `json:"members"`
	Drafted   bool          `json:"drafted"`
}
