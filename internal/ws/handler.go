package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/duel-draft-backend/internal/auth"
	"github.com/DoyleJ11/duel-draft-backend/internal/draft"
	"github.com/DoyleJ11/duel-draft-backend/internal/engine"
	"github.com/DoyleJ11/duel-draft-backend/internal/hub"
	"github.com/DoyleJ11/duel-draft-backend/internal/storage"
	"github.com/DoyleJ11/duel-draft-backend/pkg/types"
)

// Drafts is what the channel needs from the draft service.
type Drafts interface {
	State(ctx context.Context, draftID string) (engine.State, error)
	SubmitPick(ctx context.Context, draftID, identity string, req types.PickRequest) (types.PickResponse, error)
}

type Options struct {
	Hub            *hub.Hub
	Drafts         Drafts
	Logger         *zap.SugaredLogger
	OutboxSize     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	RequestTimeout time.Duration
	OriginPatterns []string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = hub.DefaultOutboxSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	return o
}

// Handler upgrades GET /drafts/{id}/ws. The server subscribes the connection
// before sending "subscribed", so a snapshot fetched after that message
// never misses a delta.
func Handler(opts Options) http.HandlerFunc {
	opts = opts.withDefaults()

	return func(w http.ResponseWriter, r *http.Request) {
		draftID := chi.URLParam(r, "id")
		identity := auth.DrafterID(r.Context())

		st, err := opts.Drafts.State(r.Context(), draftID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "draft not found", http.StatusNotFound)
			return
		case err != nil:
			opts.Logger.Errorw("failed to load draft for channel", "draft_id", draftID, "error", err)
			http.Error(w, "draft unavailable", http.StatusServiceUnavailable)
			return
		}
		if identity != "" && identity != st.Draft.Drafters[0] && identity != st.Draft.Drafters[1] {
			http.Error(w, "not a participant", http.StatusForbidden)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sub := hub.NewSubscriber(uuid.NewString(), draftID, identity, opts.OutboxSize)
		log := opts.Logger.With("draft_id", draftID, "subscriber_id", sub.ID, "drafter_id", identity)
		if err := opts.Hub.Subscribe(ctx, sub); err != nil {
			log.Warnw("subscribe failed", "error", err)
			conn.Close(websocket.StatusTryAgainLater, "hub unavailable")
			return
		}
		defer opts.Hub.Unsubscribe(draftID, sub.ID)

		c := &client{conn: conn, opts: opts, log: log}
		if err := c.write(ctx, types.ServerMessage{Type: types.MsgSubscribed}); err != nil {
			return
		}

		// Writer goroutine
		go func() {
			defer cancel()
			c.writeLoop(ctx, sub.Outbox)
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if ctx.Err() == nil {
						log.Debugw("channel read ended", "error", err)
					}
				}
				return
			}
			c.handle(ctx, draftID, identity, data)
		}
	}
}

type client struct {
	conn *websocket.Conn
	opts Options
	log  *zap.SugaredLogger
}

func (c *client) write(ctx context.Context, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, v)
}

func (c *client) writeLoop(ctx context.Context, outbox <-chan types.Delta) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case d, ok := <-outbox:
			if !ok {
				// Dropped by the hub for being too slow; the client resyncs.
				c.conn.Close(websocket.StatusTryAgainLater, "subscriber too slow")
				return
			}
			if err := c.write(ctx, d); err != nil {
				c.log.Debugw("delta write failed", "sequence", d.Sequence, "error", err)
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.log.Debugw("ping failed", "error", err)
				return
			}
		}
	}
}

func (c *client) handle(ctx context.Context, draftID, identity string, data []byte) {
	var msg types.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = c.write(ctx, types.ServerMessage{Type: types.MsgError, Error: "bad json"})
		return
	}

	switch msg.Type {
	case types.MsgPing:
		_ = c.write(ctx, types.ServerMessage{Type: types.MsgPong})

	case types.MsgSubmitPick:
		if msg.Pick == nil {
			_ = c.write(ctx, types.ServerMessage{Type: types.MsgError, Error: "missing pick"})
			return
		}
		rctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		resp, err := c.opts.Drafts.SubmitPick(rctx, draftID, identity, *msg.Pick)
		cancel()
		if err != nil && resp.Reason == "" {
			_ = c.write(ctx, types.ServerMessage{Type: types.MsgError, Error: errorText(err)})
			return
		}
		_ = c.write(ctx, types.ServerMessage{Type: types.MsgPickResult, Result: &resp})

	default:
		_ = c.write(ctx, types.ServerMessage{Type: types.MsgError, Error: "unknown type"})
	}
}

func errorText(err error) string {
	switch {
	case errors.Is(err, draft.ErrForbidden):
		return "forbidden"
	case errors.Is(err, draft.ErrDraftMismatch), errors.Is(err, draft.ErrBadRequest):
		return "bad request"
	case errors.Is(err, storage.ErrNotFound):
		return "not found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal error"
	}
}
