package room

import (
	"context"

	"github.com/DoyleJ11/duel-draft-backend/internal/engine"
	"github.com/DoyleJ11/duel-draft-backend/internal/metrics"
)

type ManagerMsg interface{ isManagerMsg() }

type GetRoom struct {
	DraftID string
	Reply   chan *Room
}

type EnsureRoom struct {
	DraftID string
	State   engine.State // only used if creation happens
	Reply   chan *Room
}

// RemoveRoom drops the registration only while it still points at Room.
type RemoveRoom struct {
	DraftID string
	Room    *Room
}

type ShutdownManager struct{}

func (GetRoom) isManagerMsg()         {}
func (EnsureRoom) isManagerMsg()      {}
func (RemoveRoom) isManagerMsg()      {}
func (ShutdownManager) isManagerMsg() {}

// Manager owns the registry of live rooms, one per draft.
type Manager struct {
	inbox  chan ManagerMsg
	rooms  map[string]*Room
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(parent context.Context, opts Options) *Manager {
	ctx, cancel := context.WithCancel(parent)
	m := &Manager{
		inbox:  make(chan ManagerMsg, 64),
		rooms:  make(map[string]*Room),
		ctx:    ctx,
		cancel: cancel,
	}
	onStale := opts.OnStale
	opts.OnStale = func(r *Room) {
		m.Remove(r)
		if onStale != nil {
			onStale(r)
		}
	}
	m.opts = opts.withDefaults()
	go m.loop()
	return m
}

func (m *Manager) Inbox() chan<- ManagerMsg { return m.inbox }

// Get returns the live room for draftID, or nil.
func (m *Manager) Get(ctx context.Context, draftID string) (*Room, error) {
	reply := make(chan *Room, 1)
	return m.ask(ctx, GetRoom{DraftID: draftID, Reply: reply}, reply)
}

// Ensure returns the live room for the draft, starting one from s if none
// exists yet.
func (m *Manager) Ensure(ctx context.Context, s engine.State) (*Room, error) {
	reply := make(chan *Room, 1)
	return m.ask(ctx, EnsureRoom{DraftID: s.Draft.ID, State: s, Reply: reply}, reply)
}

func (m *Manager) Remove(r *Room) {
	select {
	case m.inbox <- RemoveRoom{DraftID: r.ID(), Room: r}:
	case <-m.ctx.Done():
	}
}

func (m *Manager) Shutdown() {
	select {
	case m.inbox <- ShutdownManager{}:
	case <-m.ctx.Done():
	}
}

func (m *Manager) ask(ctx context.Context, msg ManagerMsg, reply chan *Room) (*Room, error) {
	select {
	case m.inbox <- msg:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.ctx.Done():
		return nil, ErrClosed
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.ctx.Done():
		return nil, ErrClosed
	}
}

func (m *Manager) loop() {
	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return

		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case GetRoom:
				msg.Reply <- m.rooms[msg.DraftID] // May be nil

			case EnsureRoom:
				if r := m.rooms[msg.DraftID]; r != nil {
					msg.Reply <- r
					break
				}
				r := NewRoom(m.ctx, msg.State, m.opts)
				m.rooms[msg.DraftID] = r
				metrics.AddActiveRooms(1)
				msg.Reply <- r

			case RemoveRoom:
				if r := m.rooms[msg.DraftID]; r != nil && r == msg.Room {
					delete(m.rooms, msg.DraftID)
					metrics.AddActiveRooms(-1)
					m.opts.Logger.Infow("room evicted", "draft_id", msg.DraftID)
				}

			case ShutdownManager:
				m.shutdown()
				return
			}
		}
	}
}

func (m *Manager) shutdown() {
	for id, r := range m.rooms {
		select {
		case r.Inbox() <- Shutdown{}:
		default:
			// Inbox full; cancelling the manager context stops it anyway.
		}
		delete(m.rooms, id)
		metrics.AddActiveRooms(-1)
	}
	m.cancel()
}
