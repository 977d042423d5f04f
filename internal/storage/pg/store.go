// Package pg is the Postgres implementation of storage.Store, built on gorm.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/DoyleJ11/duel-draft-backend/internal/engine"
	"github.com/DoyleJ11/duel-draft-backend/internal/league"
	"github.com/DoyleJ11/duel-draft-backend/internal/storage"
)

const uniqueViolation = "23505"

type Store struct {
	logger *zap.SugaredLogger
	db     *gorm.DB
}

var _ storage.Store = (*Store)(nil)

func NewStore(logger *zap.SugaredLogger, db *gorm.DB) *Store {
	return &Store{logger: logger, db: db}
}

// AutoMigrate creates or updates every table the store uses.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&leagueMemberRow{},
		&pairRow{},
		&playerRow{},
		&draftRow{},
		&pickRow{},
	)
}

func (s *Store) LoadDraft(ctx context.Context, id string) (engine.Draft, error) {
	var row draftRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return engine.Draft{}, s.mapErr("load draft", err)
	}
	return s.withPicks(ctx, row)
}

func (s *Store) LoadDraftByPair(ctx context.Context, pairID string) (engine.Draft, error) {
	var row draftRow
	if err := s.db.WithContext(ctx).First(&row, "pair_id = ?", pairID).Error; err != nil {
		return engine.Draft{}, s.mapErr("load draft by pair", err)
	}
	return s.withPicks(ctx, row)
}

func (s *Store) withPicks(ctx context.Context, row draftRow) (engine.Draft, error) {
	var picks []pickRow
	err := s.db.WithContext(ctx).
		Where("draft_id = ?", row.ID).
		Order("sequence").
		Find(&picks).Error
	if err != nil {
		return engine.Draft{}, s.mapErr("load picks", err)
	}
	return row.toDraft(picks), nil
}

func (s *Store) CreateDraft(ctx context.Context, d engine.Draft) error {
	row := fromDraft(d)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return s.mapErr("create draft", err)
	}
	s.logger.Debugw("draft created", "draft_id", d.ID, "pair_id", d.PairID)
	return nil
}

// SaveDraftAfterPick inserts the pick and advances the draft row in one
// transaction. The draft update is guarded on the previous pick count so a
// stale writer affects no rows.
func (s *Store) SaveDraftAfterPick(ctx context.Context, d engine.Draft, p engine.Pick) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pick := fromPick(d.ID, p)
		if err := tx.Create(&pick).Error; err != nil {
			return err
		}

		res := tx.Model(&draftRow{}).
			Where("id = ? AND pick_count = ?", d.ID, p.Sequence-1).
			Updates(map[string]any{
				"status":            string(d.Status),
				"current_picker_id": d.CurrentPickerID,
				"pick_count":        p.Sequence,
				"completed_at":      d.CompletedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return storage.ErrConflict
		}

		if d.Status == engine.StatusCompleted {
			err := tx.Model(&pairRow{}).
				Where("id = ?", d.PairID).
				Update("drafted", true).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.mapErr("save pick", err)
	}
	return nil
}

func (s *Store) LoadLeagueMembers(ctx context.Context, leagueID string) ([]league.Member, error) {
	var rows []leagueMemberRow
	err := s.db.WithContext(ctx).
		Where("league_id = ?", leagueID).
		Order("created_at, user_id").
		Find(&rows).Error
	if err != nil {
		return nil, s.mapErr("load members", err)
	}
	out := make([]league.Member, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toMember())
	}
	return out, nil
}

func (s *Store) LoadPairs(ctx context.Context, leagueID string) ([]league.Pair, error) {
	var rows []pairRow
	err := s.db.WithContext(ctx).
		Where("league_id = ?", leagueID).
		Order("pool_index").
		Find(&rows).Error
	if err != nil {
		return nil, s.mapErr("load pairs", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	var members []leagueMemberRow
	err = s.db.WithContext(ctx).
		Where("pair_id IN ?", ids).
		Order("user_id").
		Find(&members).Error
	if err != nil {
		return nil, s.mapErr("load pair members", err)
	}

	out := make([]league.Pair, 0, len(rows))
	for _, r := range rows {
		out = append(out, assemblePair(r, members))
	}
	return out, nil
}

func (s *Store) LoadPair(ctx context.Context, pairID string) (league.Pair, error) {
	var row pairRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", pairID).Error; err != nil {
		return league.Pair{}, s.mapErr("load pair", err)
	}
	var members []leagueMemberRow
	err := s.db.WithContext(ctx).
		Where("pair_id = ?", pairID).
		Order("user_id").
		Find(&members).Error
	if err != nil {
		return league.Pair{}, s.mapErr("load pair members", err)
	}
	return assemblePair(row, members), nil
}

func (s *Store) SavePairs(ctx context.Context, leagueID string, pairs []league.Pair) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&pairRow{}).Where("league_id = ?", leagueID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return storage.ErrConflict
		}
		if len(pairs) == 0 {
			return nil
		}

		rows := make([]pairRow, 0, len(pairs))
		for _, p := range pairs {
			rows = append(rows, pairRow{ID: p.ID, LeagueID: leagueID, PoolIndex: p.PoolIndex})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}

		for _, p := range pairs {
			err := tx.Model(&leagueMemberRow{}).
				Where("league_id = ? AND user_id IN ?", leagueID, p.MemberIDs()).
				Update("pair_id", p.ID).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.mapErr("save pairs", err)
	}
	s.logger.Debugw("pairs saved", "league_id", leagueID, "count", len(pairs))
	return nil
}

func (s *Store) LoadPlayersByPool(ctx context.Context, poolIndex int) ([]engine.Player, error) {
	var rows []playerRow
	err := s.db.WithContext(ctx).
		Where("pool_assignment = ?", poolIndex).
		Order("composite_rank, id").
		Find(&rows).Error
	if err != nil {
		return nil, s.mapErr("load players", err)
	}
	out := make([]engine.Player, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toPlayer())
	}
	return out, nil
}

func assemblePair(r pairRow, members []leagueMemberRow) league.Pair {
	p := league.Pair{ID: r.ID, LeagueID: r.LeagueID, PoolIndex: r.PoolIndex, Drafted: r.Drafted}
	i := 0
	for _, m := range members {
		if m.PairID == nil || *m.PairID != r.ID || i >= len(p.Members) {
			continue
		}
		p.Members[i] = m.toMember()
		i++
	}
	return p
}

// mapErr folds driver and gorm errors into the storage sentinels.
func (s *Store) mapErr(op string, err error) error {
	if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrConflict
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		s.logger.Debugw("unique violation", "op", op, "constraint", pgErr.ConstraintName)
		return fmt.Errorf("%w: %s", storage.ErrConflict, pgErr.ConstraintName)
	}
	s.logger.Errorw("storage failure", "op", op, "error", err)
	return fmt.Errorf("%s: %w: %v", op, storage.ErrUnavailable, err)
}
