// Package apperr defines the typed error kinds shared across lmassist's
// components, so callers can branch on failure class with errors.As
// instead of string matching.
package apperr

import "fmt"

// Kind tags an Error with the recovery behaviour it implies (see spec §7).
type Kind int

const (
	// KindInvalidRequest means the caller gave unusable input; no state changed.
	KindInvalidRequest Kind = iota
	// KindNotFound means the referenced entity does not exist.
	KindNotFound
	// KindDuplicate means a create was rejected by a dedup invariant.
	KindDuplicate
	// KindParseError means a document, front-matter block, or JSON line failed
	// to parse; callers should degrade (skip) rather than abort.
	KindParseError
	// KindIoError means a filesystem operation failed.
	KindIoError
	// KindTimeout means an operation exceeded its deadline.
	KindTimeout
	// KindUpstreamError means a remote collaborator (hub, peer, embedder)
	// returned an error.
	KindUpstreamError
	// KindConflict means two writers raced; the newer write should win.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindNotFound:
		return "not_found"
	case KindDuplicate:
		return "duplicate"
	case KindParseError:
		return "parse_error"
	case KindIoError:
		return "io_error"
	case KindTimeout:
		return "timeout"
	case KindUpstreamError:
		return "upstream_error"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is the single error type used across lmassist's core packages.
// It carries a Kind so call sites can recover appropriately, plus an
// optional reference to the entity involved (e.g. an existing document ID
// for KindDuplicate, per spec §7's "caller sees the existing ID").
type Error struct {
	Kind Kind
	Msg  string
	Ref  string
	Err  error
}

func (e *Error) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("%s: %s (ref=%s)", e.Kind, e.Msg, e.Ref)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, apperr.New(apperr.KindNotFound, "")) work: a target
// built via New(kind, "") (no message, ref, or cause) matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Msg == "" && t.Ref == "" && t.Err == nil {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithRef attaches an entity reference (e.g. an existing document ID) to an
// error, used by Duplicate errors so the caller can surface the winner.
func WithRef(kind Kind, ref, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Ref: ref}
}

// KindOf reports the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := as(err, &e); ok {
		return e.Kind, true
	}
	return 0, false
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
