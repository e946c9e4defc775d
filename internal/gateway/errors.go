package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the closed classification of a failed gateway call, produced once
// at the response boundary. Callers branch on Kind (or the Is* helpers) and
// never re-inspect status codes downstream.
type Kind string

const (
	// KindUnauthorized is a 401. The gateway does not act on it: during a
	// login attempt it means bad credentials, during an authenticated call
	// it means the session is gone. The caller decides which.
	KindUnauthorized Kind = "unauthorized"
	// KindForbidden is a 403: the credential exists but the call was rejected.
	KindForbidden Kind = "forbidden"
	// KindNotFound is a 404. On list fetches callers treat it as an empty result.
	KindNotFound Kind = "not_found"
	// KindConflict is a 409 or 422, e.g. a delete blocked by dependent resources.
	KindConflict Kind = "conflict"
	// KindTransient covers network failures and any other status.
	KindTransient Kind = "transient"
)

// Error is the classified failure of a gateway call.
type Error struct {
	Status  int // HTTP status; 0 for network failures
	Kind    Kind
	Message string // backend-provided message when present
	Err     error  // underlying transport error, if any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway: %s (status=%d): %s", e.Kind, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("gateway: %s (status=%d)", e.Kind, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// errorBody matches the message shapes the backend is known to emit.
type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	ErrMsg  string `json:"error"`
}

// classify maps a non-2xx response to an Error. body may be nil.
func classify(status int, body []byte) *Error {
	kind := KindTransient
	switch {
	case status == 401:
		kind = KindUnauthorized
	case status == 403:
		kind = KindForbidden
	case status == 404:
		kind = KindNotFound
	case status == 409 || status == 422:
		kind = KindConflict
	}
	msg := ""
	if len(body) > 0 {
		var eb errorBody
		if err := json.Unmarshal(body, &eb); err == nil {
			switch {
			case eb.Message != "":
				msg = eb.Message
			case eb.Detail != "":
				msg = eb.Detail
			case eb.ErrMsg != "":
				msg = eb.ErrMsg
			}
		}
	}
	return &Error{Status: status, Kind: kind, Message: msg}
}

// transientErr wraps a transport failure (DNS, refused connection, timeout).
func transientErr(err error) *Error {
	return &Error{Kind: KindTransient, Err: err}
}

func isKind(err error, k Kind) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == k
}

// IsUnauthorized reports whether err is a classified 401.
func IsUnauthorized(err error) bool { return isKind(err, KindUnauthorized) }

// IsForbidden reports whether err is a classified 403.
func IsForbidden(err error) bool { return isKind(err, KindForbidden) }

// IsNotFound reports whether err is a classified 404.
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

// IsConflict reports whether err is a classified 409/422.
func IsConflict(err error) bool { return isKind(err, KindConflict) }

// MessageOf returns the backend-provided message from a classified error, or "".
func MessageOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Message
	}
	return ""
}
