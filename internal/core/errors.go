// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"errors"
	"net/http"
)

// Msg is a translatable message. The HTTP layer renders it in the caller's
// language; Data feeds the message template.
type Msg struct {
	ID   string
	Data map[string]any
}

// M builds a Msg from alternating key/value pairs.
func M(id string, kv ...any) Msg {
	m := Msg{ID: id}
	if len(kv) > 1 {
		m.Data = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			if k, ok := kv[i].(string); ok {
				m.Data[k] = kv[i+1]
			}
		}
	}
	return m
}

// Response is a JSON object returned by a service operation. Msg values
// (and slices of them) are localized before encoding.
type Response map[string]any

// Error is a client-facing failure with an HTTP status.
type Error struct {
	Status int
	Msg    Msg
	// Extra fields are merged into the JSON error object.
	Extra Response
}

func (e *Error) Error() string {
	return e.Msg.ID
}

func fail(status int, id string, kv ...any) *Error {
	return &Error{Status: status, Msg: M(id, kv...)}
}

func badRequest(id string, kv ...any) *Error { return fail(http.StatusBadRequest, id, kv...) }

func notFound(id string, kv ...any) *Error { return fail(http.StatusNotFound, id, kv...) }

// With adds an extra field to the error body.
func (e *Error) With(key string, value any) *Error {
	if e.Extra == nil {
		e.Extra = Response{}
	}
	e.Extra[key] = value
	return e
}

// AsError unwraps err into an *Error when it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
