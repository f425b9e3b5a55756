package protocol

// Codes a server may put on ACTION_RESULT or KICK.
const (
	ErrProtoUnsupportedVersion = "E_PROTO_UNSUPPORTED_VERSION"
	ErrAuthFailed              = "E_AUTH_FAILED"

	// Action layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrUnreachable   = "E_UNREACHABLE"
	ErrBlocked       = "E_BLOCKED"
	ErrCanceled      = "E_CANCELED"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoUnsupportedVersion: {},
	ErrAuthFailed:              {},
	ErrBadRequest:              {},
	ErrNoPermission:            {},
	ErrNoResource:              {},
	ErrInvalidTarget:           {},
	ErrUnreachable:             {},
	ErrBlocked:                 {},
	ErrCanceled:                {},
	ErrInternal:                {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// NormalizeCode maps anything outside the table to ErrInternal. The empty
// code stays empty.
func NormalizeCode(code string) string {
	if IsKnownCode(code) {
		return code
	}
	return ErrInternal
}
