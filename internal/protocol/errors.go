package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Negotiation/token layer.
	ErrIllegalToken      = "E_ILLEGAL_TOKEN"
	ErrAlreadyHeld       = "E_ALREADY_HELD"
	ErrPlayerAlreadyHold = "E_PLAYER_ALREADY_HOLDS"
	ErrMuted             = "E_MUTED"
	ErrAlreadyCommitted  = "E_ALREADY_COMMITTED"

	// Voting/manipulation layer.
	ErrInsufficientTokens = "E_INSUFFICIENT_TOKENS"
	ErrWrongOwner         = "E_WRONG_OWNER"
	ErrChangeCapExceeded  = "E_CHANGE_CAP_EXCEEDED"
	ErrNotOwnerOrHolder   = "E_NOT_OWNER_OR_HOLDER"
	ErrVoteOutOfTurn      = "E_VOTE_OUT_OF_TURN"

	// Generic action layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrWrongPhase    = "E_WRONG_PHASE"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:    {},
	ErrIllegalToken:       {},
	ErrAlreadyHeld:        {},
	ErrPlayerAlreadyHold:  {},
	ErrMuted:              {},
	ErrAlreadyCommitted:   {},
	ErrInsufficientTokens: {},
	ErrWrongOwner:         {},
	ErrChangeCapExceeded:  {},
	ErrNotOwnerOrHolder:   {},
	ErrVoteOutOfTurn:      {},
	ErrBadRequest:         {},
	ErrInvalidTarget:      {},
	ErrWrongPhase:         {},
	ErrInternal:           {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
