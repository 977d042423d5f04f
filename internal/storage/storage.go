// Package storage is the boundary to the persistence collaborator.
package storage

import (
	"context"
	"errors"

	"github.com/DoyleJ11/duel-draft-backend/internal/engine"
	"github.com/DoyleJ11/duel-draft-backend/internal/league"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the write raced with, or contradicts, stored state.
	ErrConflict = errors.New("storage conflict")
	// ErrUnavailable is any other failure of the backing store.
	ErrUnavailable = errors.New("storage unavailable")
)

type Store interface {
	LoadDraft(ctx context.Context, id string) (engine.Draft, error)
	LoadDraftByPair(ctx context.Context, pairID string) (engine.Draft, error)
	CreateDraft(ctx context.Context, d engine.Draft) error
	// SaveDraftAfterPick persists the pick and the draft fields it changed,
	// atomically. It fails with ErrConflict when p is not the next sequence.
	SaveDraftAfterPick(ctx context.Context, d engine.Draft, p engine.Pick) error

	LoadLeagueMembers(ctx context.Context, leagueID string) ([]league.Member, error)
	LoadPairs(ctx context.Context, leagueID string) ([]league.Pair, error)
	LoadPair(ctx context.Context, pairID string) (league.Pair, error)
	// SavePairs stores the league pairing. ErrConflict if pairs already exist.
	SavePairs(ctx context.Context, leagueID string, pairs []league.Pair) error

	LoadPlayersByPool(ctx context.Context, poolIndex int) ([]engine.Player, error)
}
