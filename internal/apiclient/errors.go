package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a non-2xx answer from the backend.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend: %d %s", e.Status, e.Detail)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// IsForbidden reports whether err is a backend 401 or 403.
func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden) || hasStatus(err, http.StatusUnauthorized)
}

func hasStatus(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == status
}

// newError extracts FastAPI's "detail", which is either a string or a list of
// {loc, msg} objects for request validation failures.
func newError(status int, body []byte) *Error {
	e := &Error{Status: status, Detail: http.StatusText(status)}

	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &env) != nil || len(env.Detail) == 0 {
		return e
	}

	var s string
	if json.Unmarshal(env.Detail, &s) == nil && s != "" {
		e.Detail = s
		return e
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if json.Unmarshal(env.Detail, &items) == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if n := len(it.Loc); n > 0 {
				msgs = append(msgs, fmt.Sprintf("%v: %s", it.Loc[n-1], it.Msg))
			} else {
				msgs = append(msgs, it.Msg)
			}
		}
		e.Detail = strings.Join(msgs, "; ")
	}
	return e
}
