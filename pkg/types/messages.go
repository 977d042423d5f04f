package types

// Delta types pushed over the draft channel.
const (
	DeltaPickMade       = "pick_made"
	DeltaDraftCompleted = "draft_completed"
)

// Other server -> client message types on the channel.
const (
	MsgSubscribed = "subscribed"
	MsgPickResult = "pick_result"
	MsgPong       = "pong"
	MsgError      = "error"
)

// Client -> server message types on the channel.
const (
	MsgPing       = "ping"
	MsgSubmitPick = "submit_pick"
)

type ErrorKind string

const (
	ReasonNotYourTurn        ErrorKind = "NotYourTurn"
	ReasonDraftNotActive     ErrorKind = "DraftNotActive"
	ReasonPlayerUnavailable  ErrorKind = "PlayerUnavailable"
	ReasonRosterFull         ErrorKind = "RosterFull"
	ReasonStorageUnavailable ErrorKind = "StorageUnavailable"
)

// Delta is a single state change. Sequence equals the sequence of the pick
// that caused it; draft_completed carries the sequence of the final pick.
type Delta struct {
	Type         string  `json:"type"`
	Sequence     int     `json:"sequence"`
	Pick         *Pick   `json:"pick,omitempty"`
	NextPickerID *string `json:"nextPickerId"`
	Rosters      Rosters `json:"rosters,omitempty"`
}

type PickRequest struct {
	DraftID          string `json:"draftId"`
	DrafterID        string `json:"drafterId"`
	PlayerID         string `json:"playerId"`
	IdempotencyToken string `json:"idempotencyToken"`
}

type PickResponse struct {
	Accepted  bool      `json:"accepted"`
	Reason    ErrorKind `json:"reason,omitempty"`
	Pick      *Pick     `json:"pick,omitempty"`
	Duplicate bool      `json:"duplicate,omitempty"`
}

// ClientMessage is what a client writes on the channel.
type ClientMessage struct {
	Type string       `json:"type"`
	Pick *PickRequest `json:"pick,omitempty"`
}

// ServerMessage is every non-delta message the server writes on the channel.
type ServerMessage struct {
	Type   string        `json:"type"`
	Result *PickResponse `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Envelope peeks at the type of an incoming message before decoding it.
type Envelope struct {
	Type string `json:"type"`
}
