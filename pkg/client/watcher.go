package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/duel-draft-backend/pkg/types"
)

var (
	// ErrConnectionLost is returned by Run once every reconnect attempt failed.
	ErrConnectionLost = errors.New("connection lost")
	// ErrNotOpen is returned when sending while the channel is down.
	ErrNotOpen = errors.New("channel not open")
	// ErrStorageUnavailable means the server could not persist a pick.
	// Resubmit with the same idempotency token.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

const (
	DefaultBaseDelay   = time.Second
	DefaultMaxAttempts = 5
)

type Options struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string
	DraftID string
	// Token is sent as a bearer token when set.
	Token  string
	Header http.Header

	HTTPClient     *http.Client
	RequestTimeout time.Duration

	// BaseDelay is the first reconnect delay; each further attempt doubles it.
	BaseDelay   time.Duration
	MaxAttempts int

	Clock  clockwork.Clock
	Logger *zap.SugaredLogger
}

func (o Options) withDefaults() Options {
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}

// Watcher keeps a View of one draft in sync: snapshot, then deltas, and a
// fresh snapshot after every reconnect or detected gap.
type Watcher struct {
	opts Options

	mu   sync.Mutex
	conn *websocket.Conn // nil unless the channel is open
	view *View

	updates chan *View
	results chan types.PickResponse
}

func NewWatcher(opts Options) *Watcher {
	return &Watcher{
		opts:    opts.withDefaults(),
		updates: make(chan *View, 1),
		results: make(chan types.PickResponse, 16),
	}
}

// Updates delivers the latest view after every change. Intermediate views
// are dropped when the reader falls behind.
func (w *Watcher) Updates() <-chan *View { return w.updates }

// Results delivers pick_result answers to picks sent over the channel.
func (w *Watcher) Results() <-chan types.PickResponse { return w.results }

// View returns a copy of the current view, or nil before the first snapshot.
func (w *Watcher) View() *View {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.view == nil {
		return nil
	}
	return w.view.Clone()
}

// Run connects and stays connected until ctx is done or reconnecting fails
// MaxAttempts times in a row.
func (w *Watcher) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.opts.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = w.opts.BaseDelay << min(w.opts.MaxAttempts-1, 16)
	bo.Reset()

	attempt := 0
	for {
		synced, err := w.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if synced {
			attempt = 0
			bo.Reset()
		}

		attempt++
		if attempt > w.opts.MaxAttempts {
			w.opts.Logger.Warnw("giving up reconnecting", "draft_id", w.opts.DraftID, "error", err)
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}

		delay := bo.NextBackOff()
		w.opts.Logger.Infow("reconnecting", "draft_id", w.opts.DraftID, "attempt", attempt, "delay", delay, "error", err)

		timer := w.opts.Clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.Chan():
		}
	}
}

// session runs one connection. synced reports whether it got as far as a
// snapshot, which resets the reconnect budget.
func (w *Watcher) session(ctx context.Context) (synced bool, err error) {
	dctx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
	conn, _, err := websocket.Dial(dctx, w.opts.BaseURL+"/drafts/"+w.opts.DraftID+"/ws", &websocket.DialOptions{
		HTTPClient: w.opts.HTTPClient,
		HTTPHeader: w.header(),
	})
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	// The server sends "subscribed" once deltas are flowing to us; only then
	// is a snapshot guaranteed not to miss any.
	var hello types.ServerMessage
	rctx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
	err = wsjson.Read(rctx, conn, &hello)
	cancel()
	if err != nil {
		return false, fmt.Errorf("await subscribed: %w", err)
	}
	if hello.Type != types.MsgSubscribed {
		return false, fmt.Errorf("unexpected first message %q", hello.Type)
	}

	if err := w.resync(ctx); err != nil {
		return false, err
	}

	w.setConn(conn)
	defer w.setConn(nil)

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		if err := w.handle(ctx, raw); err != nil {
			return true, err
		}
	}
}

func (w *Watcher) handle(ctx context.Context, raw json.RawMessage) error {
	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	switch env.Type {
	case types.DeltaPickMade, types.DeltaDraftCompleted:
		var d types.Delta
		if err := json.Unmarshal(raw, &d); err != nil {
			return fmt.Errorf("decode delta: %w", err)
		}
		w.mu.Lock()
		outcome := w.view.Apply(d)
		w.mu.Unlock()

		switch outcome {
		case OutcomeApplied:
			w.publish()
		case OutcomeGap:
			w.opts.Logger.Infow("sequence gap, resyncing", "draft_id", w.opts.DraftID, "sequence", d.Sequence)
			return w.resync(ctx)
		}

	case types.MsgPickResult:
		var msg types.ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("decode pick result: %w", err)
		}
		if msg.Result != nil {
			select {
			case w.results <- *msg.Result:
			default:
				w.opts.Logger.Warnw("pick result dropped", "draft_id", w.opts.DraftID)
			}
		}

	case types.MsgError:
		var msg types.ServerMessage
		_ = json.Unmarshal(raw, &msg)
		w.opts.Logger.Warnw("server error", "draft_id", w.opts.DraftID, "error", msg.Error)
	}
	return nil
}

// resync replaces the view with a fresh snapshot.
func (w *Watcher) resync(ctx context.Context) error {
	snap, err := w.Snapshot(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.view = FromSnapshot(snap)
	w.mu.Unlock()
	w.publish()
	return nil
}

func (w *Watcher) publish() {
	v := w.View()
	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- v:
	default:
	}
}

func (w *Watcher) setConn(c *websocket.Conn) {
	w.mu.Lock()
	w.conn = c
	w.mu.Unlock()
}

// Send writes msg on the channel. It fails with ErrNotOpen while the channel
// is down rather than queueing.
func (w *Watcher) Send(ctx context.Context, msg types.ClientMessage) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}
	ctx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

// Snapshot fetches the full draft state.
func (w *Watcher) Snapshot(ctx context.Context) (types.Snapshot, error) {
	var snap types.Snapshot
	status, err := w.doJSON(ctx, http.MethodGet, "/drafts/"+w.opts.DraftID+"/snapshot", nil, &snap)
	if err != nil {
		return types.Snapshot{}, err
	}
	if status != http.StatusOK {
		return types.Snapshot{}, fmt.Errorf("snapshot: unexpected status %d", status)
	}
	return snap, nil
}

// NewPickRequest builds a pick for this draft with a fresh idempotency
// token. Keep the request to resubmit it after an unknown outcome.
func (w *Watcher) NewPickRequest(drafterID, playerID string) types.PickRequest {
	return types.PickRequest{
		DraftID:          w.opts.DraftID,
		DrafterID:        drafterID,
		PlayerID:         playerID,
		IdempotencyToken: uuid.NewString(),
	}
}

// SubmitPick posts a pick. A timeout is an unknown outcome: call again with
// the same req. A req without a token is keyed by the server on draft,
// player and drafter, so resubmitting it is safe as well.
func (w *Watcher) SubmitPick(ctx context.Context, req types.PickRequest) (types.PickResponse, error) {
	if req.DraftID == "" {
		req.DraftID = w.opts.DraftID
	}

	var resp types.PickResponse
	status, err := w.doJSON(ctx, http.MethodPost, "/drafts/"+w.opts.DraftID+"/picks", req, &resp)
	if err != nil {
		return types.PickResponse{}, err
	}
	switch status {
	case http.StatusOK:
		return resp, nil
	case http.StatusServiceUnavailable:
		return resp, ErrStorageUnavailable
	default:
		return types.PickResponse{}, fmt.Errorf("submit pick: unexpected status %d", status)
	}
}

func (w *Watcher) doJSON(ctx context.Context, method, path string, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
	defer cancel()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, w.opts.BaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header = w.header()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := w.opts.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusServiceUnavailable {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && resp.StatusCode == http.StatusOK {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func (w *Watcher) header() http.Header {
	h := http.Header{}
	for k, vs := range w.opts.Header {
		h[k] = append([]string(nil), vs...)
	}
	if w.opts.Token != "" {
		h.Set("Authorization", "Bearer "+w.opts.Token)
	}
	return h
}
