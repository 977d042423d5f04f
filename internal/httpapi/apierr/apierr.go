package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DoyleJ11/duel-draft-backend/internal/auth"
	"github.com/DoyleJ11/duel-draft-backend/internal/draft"
	"github.com/DoyleJ11/duel-draft-backend/internal/league"
	"github.com/DoyleJ11/duel-draft-backend/internal/room"
	"github.com/DoyleJ11/duel-draft-backend/internal/storage"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrResponse struct {
	Error APIError `json:"error"`
}

// Map keeps responses stable while the internal errors evolve. ok is false
// for errors nobody expected, which callers log before answering 500.
func Map(err error) (int, APIError, bool) {
	switch {
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, Unauthorized, true

	case errors.Is(err, draft.ErrForbidden):
		return http.StatusForbidden, Forbidden, true

	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, NotFound, true

	case errors.Is(err, draft.ErrDraftMismatch),
		errors.Is(err, draft.ErrBadRequest):
		return http.StatusBadRequest, BadRequest, true

	case errors.Is(err, league.ErrInsufficientMembers):
		return http.StatusBadRequest, InsufficientMembers, true
	case errors.Is(err, league.ErrTooManyMembers):
		return http.StatusBadRequest, TooManyMembers, true
	case errors.Is(err, league.ErrAlreadyPaired):
		return http.StatusConflict, AlreadyPaired, true
	case errors.Is(err, draft.ErrPairIncomplete):
		return http.StatusConflict, PairIncomplete, true

	case errors.Is(err, storage.ErrUnavailable),
		errors.Is(err, storage.ErrConflict),
		errors.Is(err, room.ErrClosed):
		return http.StatusServiceUnavailable, StorageUnavailable, true

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, Timeout, true

	default:
		return http.StatusInternalServerError, InternalServerError, false
	}
}

func Handle(w http.ResponseWriter, err error) bool {
	if status, apiErr, ok := Map(err); ok {
		WriteAPIErrJSON(w, status, apiErr)
		return true
	}

	return false
}

func WriteAPIErrJSON(w http.ResponseWriter, status int, apiErr APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrResponse{Error: apiErr})
}
