package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/duel-draft-backend/internal/auth"
	"github.com/DoyleJ11/duel-draft-backend/internal/draft"
	"github.com/DoyleJ11/duel-draft-backend/internal/httpapi/apierr"
	"github.com/DoyleJ11/duel-draft-backend/pkg/types"
)

const maxBodyBytes = 1 << 16

type Handler struct {
	svc    *draft.Service
	logger *zap.SugaredLogger
}

func NewHandler(logger *zap.SugaredLogger, svc *draft.Service) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) CreatePairs(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")
	pairs, err := h.svc.CreatePairs(r.Context(), leagueID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]types.Pair, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, draft.PairToWire(p))
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) ListPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.svc.Pairs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]types.Pair, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, draft.PairToWire(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// StartDraft answers 201 when it created the draft and 200 when the pair
// already had one.
func (h *Handler) StartDraft(w http.ResponseWriter, r *http.Request) {
	d, created, err := h.svc.StartDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, draft.DraftToWire(d))
}

func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) Rosters(w http.ResponseWriter, r *http.Request) {
	rosters, err := h.svc.Rosters(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rosters)
}

// SubmitPick answers 200 for every validated outcome, accepted or not.
// Storage failures answer 503 with reason StorageUnavailable.
func (h *Handler) SubmitPick(w http.ResponseWriter, r *http.Request) {
	var req types.PickRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		apierr.WriteAPIErrJSON(w, http.StatusBadRequest, apierr.BadRequest)
		return
	}

	draftID := chi.URLParam(r, "id")
	resp, err := h.svc.SubmitPick(r.Context(), draftID, auth.DrafterID(r.Context()), req)
	if err != nil {
		if resp.Reason == types.ReasonStorageUnavailable {
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apierr.Handle(w, err) {
		h.logger.Debugw("request failed", "path", r.URL.Path, "error", err)
		return
	}
	h.logger.Errorw("unexpected error", "path", r.URL.Path, "error", err)
	apierr.WriteAPIErrJSON(w, http.StatusInternalServerError, apierr.InternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
