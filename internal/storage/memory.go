package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/DoyleJ11/duel-draft-backend/internal/engine"
	"github.com/DoyleJ11/duel-draft-backend/internal/league"
)

// MemoryStore keeps everything in process memory. It backs local runs
// without a database and the tests.
type MemoryStore struct {
	mu      sync.RWMutex
	members map[string][]league.Member // by league id
	pairs   map[string]league.Pair     // by pair id
	drafts  map[string]engine.Draft    // by draft id
	players map[string]engine.Player   // by player id
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members: make(map[string][]league.Member),
		pairs:   make(map[string]league.Pair),
		drafts:  make(map[string]engine.Draft),
		players: make(map[string]engine.Player),
	}
}

func (m *MemoryStore) AddMembers(leagueID string, members ...league.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[leagueID] = append(m.members[leagueID], members...)
}

func (m *MemoryStore) AddPlayers(players ...engine.Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range players {
		m.players[p.ID] = p
	}
}

func (m *MemoryStore) LoadDraft(_ context.Context, id string) (engine.Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[id]
	if !ok {
		return engine.Draft{}, ErrNotFound
	}
	return copyDraft(d), nil
}

func (m *MemoryStore) LoadDraftByPair(_ context.Context, pairID string) (engine.Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.drafts {
		if d.PairID == pairID {
			return copyDraft(d), nil
		}
	}
	return engine.Draft{}, ErrNotFound
}

func (m *MemoryStore) CreateDraft(_ context.Context, d engine.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[d.ID]; ok {
		return ErrConflict
	}
	for _, existing := range m.drafts {
		if existing.PairID == d.PairID {
			return ErrConflict
		}
	}
	m.drafts[d.ID] = copyDraft(d)
	return nil
}

func (m *MemoryStore) SaveDraftAfterPick(_ context.Context, d engine.Draft, p engine.Pick) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.drafts[d.ID]
	if !ok {
		return ErrNotFound
	}
	if p.Sequence != len(stored.Picks)+1 {
		return ErrConflict
	}
	for _, existing := range stored.Picks {
		if existing.PlayerID == p.PlayerID {
			return ErrConflict
		}
	}

	stored.Picks = append(stored.Picks, p)
	stored.Status = d.Status
	stored.CurrentPickerID = d.CurrentPickerID
	stored.CompletedAt = d.CompletedAt
	m.drafts[d.ID] = stored

	if d.Status == engine.StatusCompleted {
		if pair, ok := m.pairs[d.PairID]; ok {
			pair.Drafted = true
			m.pairs[d.PairID] = pair
		}
	}
	return nil
}

func (m *MemoryStore) LoadLeagueMembers(_ context.Context, leagueID string) ([]league.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]league.Member, len(m.members[leagueID]))
	copy(out, m.members[leagueID])
	return out, nil
}

func (m *MemoryStore) LoadPairs(_ context.Context, leagueID string) ([]league.Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []league.Pair
	for _, p := range m.pairs {
		if p.LeagueID == leagueID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PoolIndex < out[j].PoolIndex })
	return out, nil
}

func (m *MemoryStore) LoadPair(_ context.Context, pairID string) (league.Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pairs[pairID]
	if !ok {
		return league.Pair{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) SavePairs(_ context.Context, leagueID string, pairs []league.Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pairs {
		if p.LeagueID == leagueID {
			return ErrConflict
		}
	}
	for _, p := range pairs {
		p.LeagueID = leagueID
		m.pairs[p.ID] = p
	}
	return nil
}

func (m *MemoryStore) LoadPlayersByPool(_ context.Context, poolIndex int) ([]engine.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Player
	for _, p := range m.players {
		if p.PoolAssignment == poolIndex {
			out = append(out, p)
		}
	}
	engine.SortPlayers(out)
	return out, nil
}

func copyDraft(d engine.Draft) engine.Draft {
	picks := make([]engine.Pick, len(d.Picks))
	copy(picks, d.Picks)
	d.Picks = picks
	return d
}
