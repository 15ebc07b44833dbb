package user

import "fmt"

// Kind discriminates the error categories spec.md §7 requires the core
// to distinguish, so callers can branch on errors.As instead of string
// matching (the teacher gets away with plain fmt.Errorf/errors.New
// because mixmasala-server is a single binary with no library
// consumers; this engine is consumed as a library, so typed
// discrimination is load-bearing here).
type Kind int

const (
	ErrNoIdentity Kind = iota
	ErrNotJoined
	ErrUnknownTopic
	ErrPermissionDenied
	ErrMissingCursor
	ErrMissingPredecessor
	ErrDuplicateAddress
	ErrTransport
	ErrParse
	ErrMACMismatch
	ErrSignatureInvalid
	ErrAmbiguousAddress
)

func (k Kind) String() string {
	switch k {
	case ErrNoIdentity:
		return "no-identity"
	case ErrNotJoined:
		return "not-joined"
	case ErrUnknownTopic:
		return "unknown-topic"
	case ErrPermissionDenied:
		return "permission-denied"
	case ErrMissingCursor:
		return "missing-cursor"
	case ErrMissingPredecessor:
		return "missing-predecessor"
	case ErrDuplicateAddress:
		return "duplicate-address"
	case ErrTransport:
		return "transport-failure"
	case ErrParse:
		return "parse-failure"
	case ErrMACMismatch:
		return "mac-mismatch"
	case ErrSignatureInvalid:
		return "signature-invalid"
	case ErrAmbiguousAddress:
		return "ambiguous-address"
	default:
		return "unknown"
	}
}

// Error is the typed error every User operation returns on failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func wrapErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("user: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("user: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, &user.Error{Kind: user.ErrNotJoined}) style
// matching against a bare Kind — satisfied when the target is a *Error
// with the same Kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
