package pg

import (
	"time"

	"github.com/DoyleJ11/duel-draft-backend/internal/engine"
	"github.com/DoyleJ11/duel-draft-backend/internal/league"
)

type leagueMemberRow struct {
	LeagueID    string  `gorm:"primaryKey;type:varchar(64)"`
	UserID      string  `gorm:"primaryKey;type:varchar(64)"`
	DisplayName string  `gorm:"type:varchar(128);not null"`
	Email       string  `gorm:"type:varchar(256)"`
	PairID      *string `gorm:"type:varchar(64);index"`
	CreatedAt   time.Time
}

func (leagueMemberRow) TableName() string { return "league_members" }

type pairRow struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	LeagueID  string `gorm:"type:varchar(64);not null;uniqueIndex:idx_pair_league_pool,priority:1"`
	PoolIndex int    `gorm:"not null;uniqueIndex:idx_pair_league_pool,priority:2"`
	Drafted   bool   `gorm:"not null"`
	CreatedAt time.Time
}

func (pairRow) TableName() string { return "draft_pairs" }

type playerRow struct {
	ID             string  `gorm:"primaryKey;type:varchar(64)"`
	Name           string  `gorm:"type:varchar(128)"`
	Team           string  `gorm:"type:varchar(16)"`
	Position       string  `gorm:"type:varchar(8);index"`
	Age            int
	CompositeRank  float64 `gorm:"index"`
	PoolAssignment int     `gorm:"index"`
}

func (playerRow) TableName() string { return "players" }

type draftRow struct {
	ID              string `gorm:"primaryKey;type:varchar(64)"`
	PairID          string `gorm:"type:varchar(64);not null;uniqueIndex"`
	LeagueID        string `gorm:"type:varchar(64);not null;index"`
	PoolIndex       int    `gorm:"not null"`
	DrafterA        string `gorm:"type:varchar(64);not null"`
	DrafterB        string `gorm:"type:varchar(64);not null"`
	Status          string `gorm:"type:varchar(16);not null"`
	CurrentPickerID string `gorm:"type:varchar(64)"`
	PickCount       int    `gorm:"not null"`
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

func (draftRow) TableName() string { return "drafts" }

type pickRow struct {
	DraftID   string `gorm:"primaryKey;type:varchar(64);uniqueIndex:idx_pick_player,priority:1;uniqueIndex:idx_pick_token,priority:1"`
	Sequence  int    `gorm:"primaryKey;autoIncrement:false"`
	DrafterID string `gorm:"type:varchar(64);not null"`
	PlayerID  string `gorm:"type:varchar(64);not null;uniqueIndex:idx_pick_player,priority:2"`
	Token     string `gorm:"type:varchar(256);not null;uniqueIndex:idx_pick_token,priority:2"`
	PickedAt  time.Time
}

func (pickRow) TableName() string { return "draft_picks" }

func (r draftRow) toDraft(picks []pickRow) engine.Draft {
	d := engine.Draft{
		ID:              r.ID,
		PairID:          r.PairID,
		LeagueID:        r.LeagueID,
		PoolIndex:       r.PoolIndex,
		Drafters:        [2]string{r.DrafterA, r.DrafterB},
		Status:          engine.Status(r.Status),
		CurrentPickerID: r.CurrentPickerID,
		Picks:           make([]engine.Pick, 0, len(picks)),
		CreatedAt:       r.CreatedAt,
		CompletedAt:     r.CompletedAt,
	}
	for _, p := range picks {
		d.Picks = append(d.Picks, engine.Pick{
			Sequence:  p.Sequence,
			DrafterID: p.DrafterID,
			PlayerID:  p.PlayerID,
			Timestamp: p.PickedAt,
			Token:     p.Token,
		})
	}
	return d
}

func fromDraft(d engine.Draft) draftRow {
	return draftRow{
		ID:              d.ID,
		PairID:          d.PairID,
		LeagueID:        d.LeagueID,
		PoolIndex:       d.PoolIndex,
		DrafterA:        d.Drafters[0],
		DrafterB:        d.Drafters[1],
		Status:          string(d.Status),
		CurrentPickerID: d.CurrentPickerID,
		PickCount:       len(d.Picks),
		CreatedAt:       d.CreatedAt,
		CompletedAt:     d.CompletedAt,
	}
}

func fromPick(draftID string, p engine.Pick) pickRow {
	return pickRow{
		DraftID:   draftID,
		Sequence:  p.Sequence,
		DrafterID: p.DrafterID,
		PlayerID:  p.PlayerID,
		Token:     p.Token,
		PickedAt:  p.Timestamp,
	}
}

func (r playerRow) toPlayer() engine.Player {
	return engine.Player{
		ID:             r.ID,
		Name:           r.Name,
		Team:           r.Team,
		Position:       engine.Position(r.Position),
		Age:            r.Age,
		CompositeRank:  r.CompositeRank,
		PoolAssignment: r.PoolAssignment,
	}
}

func (r leagueMemberRow) toMember() league.Member {
	return league.Member{UserID: r.UserID, DisplayName: r.DisplayName, Email: r.Email}
}
