package protocol

const (
	// Handshake.
	ErrAuth = "E_AUTH"

	// Room routing/state.
	ErrRoomNotFound = "E_ROOM_NOT_FOUND"
	ErrMatchEnded   = "E_MATCH_ENDED"
	ErrMatchStopped = "E_MATCH_STOPPED"

	// Action layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidAction = "E_INVALID_ACTION"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrBlocked       = "E_BLOCKED"
	ErrCooldown      = "E_COOLDOWN"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrAuth:          {},
	ErrRoomNotFound:  {},
	ErrMatchEnded:    {},
	ErrMatchStopped:  {},
	ErrBadRequest:    {},
	ErrInvalidAction: {},
	ErrNoPermission:  {},
	ErrRateLimit:     {},
	ErrBlocked:       {},
	ErrCooldown:      {},
	ErrInternal:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// ErrorReply is the acknowledgement payload of a rejected request.
type ErrorReply struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
