package lifecycle

import "errors"

// Errors returned by the lifecycle engine and the components built on it.
// Callers match them with errors.Is; every layer wraps with context.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrResponderBusy     = errors.New("responder busy")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrInvalidLocation   = errors.New("invalid location")
	ErrInvalidResponder  = errors.New("invalid responder")
	ErrStoreUnavailable  = errors.New("store unavailable")

	// ErrVersionConflict is raised by the store when a compare-and-swap
	// write loses to a concurrent writer. The coordinator translates it
	// before it reaches a caller.
	ErrVersionConflict = errors.New("version conflict")
)

// Retryable reports whether the caller may retry the failed operation with
// backoff. Only transient backend failures qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

var codes = []struct {
	err  error
	code string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrNotFound, "not_found"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrAlreadyClaimed, "already_claimed"},
	{ErrResponderBusy, "responder_busy"},
	{ErrInvalidCategory, "invalid_category"},
	{ErrInvalidLocation, "invalid_location"},
	{ErrInvalidResponder, "invalid_responder"},
	{ErrStoreUnavailable, "store_unavailable"},
	{ErrVersionConflict, "version_conflict"},
}

// Code returns a stable snake_case name for the class of err: "ok" for nil
// and "internal" for errors outside the taxonomy.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
