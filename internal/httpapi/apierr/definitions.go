package apierr

var (
	BadRequest = APIError{
		Code:    "INVALID_REQUEST",
		Message: "invalid request body",
	}
	Unauthorized = APIError{
		Code:    "UNAUTHORIZED_REQUEST",
		Message: "unauthorized request",
	}
	Forbidden = APIError{
		Code:    "FORBIDDEN",
		Message: "drafter does not match the authenticated user",
	}
	NotFound = APIError{
		Code:    "NOT_FOUND",
		Message: "resource not found",
	}
	InternalServerError = APIError{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "internal server error",
	}
	StorageUnavailable = APIError{
		Code:    "STORAGE_UNAVAILABLE",
		Message: "storage is unavailable, retry with the same idempotency token",
	}
	Timeout = APIError{
		Code:    "TIMEOUT",
		Message: "request timed out, outcome unknown",
	}
	InsufficientMembers = APIError{
		Code:    "INSUFFICIENT_MEMBERS",
		Message: "league does not have enough members to pair",
	}
	TooManyMembers = APIError{
		Code:    "TOO_MANY_MEMBERS",
		Message: "league has more members than its capacity",
	}
	AlreadyPaired = APIError{
		Code:    "ALREADY_PAIRED",
		Message: "league pairs were already generated",
	}
	PairIncomplete = APIError{
		Code:    "PAIR_INCOMPLETE",
		Message: "pair does not have two members",
	}
)
