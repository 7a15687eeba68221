package randomchat

import "fmt"

// Kind classifies a random chat failure so transports can map it to a status.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindNotFound
	KindForbidden
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "unknown"
	}
}

// Error is returned for every expected failure of the random chat operations.
// Storage and transport failures are returned wrapped as plain errors.
type Error struct {
	Kind    Kind
	Message string
	// SessionID is set on conflicts so the client can resume the open session.
	SessionID string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrInvalidState = &Error{Kind: KindInvalidState}
)

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFound(sessionID string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("chat session %s not found", sessionID), SessionID: sessionID}
}

func forbidden(sessionID string) error {
	return &Error{Kind: KindForbidden, Message: "you are not a participant of this chat session", SessionID: sessionID}
}

func invalidState(sessionID, msg string) error {
	return &Error{Kind: KindInvalidState, Message: msg, SessionID: sessionID}
}
