// Package rpc exposes a session.Bridge per WebSocket connection.
//
// Every text frame is one JSON object. Clients send requests
//
//	{"id":"1","method":"init","params":{"rows":24,"cols":80,"cwd":"/tmp"}}
//
// and receive one response per request, plus onMessage pushes carrying pty
// output as base64:
//
//	{"id":"1","ok":true}
//	{"method":"onMessage","params":{"data":"aGVsbG8K"}}
package rpc

import (
	"encoding/json"
	"errors"

	"github.com/musher-dev/idehost/internal/session"
)

// Methods accepted from clients.
const (
	MethodInit      = "init"
	MethodOnMessage = "onMessage"
	MethodResize    = "resize"
)

// Error codes carried in failed responses.
const (
	CodeBadRequest         = "bad_request"
	CodeUnknownMethod      = "unknown_method"
	CodeInvalidParams      = "invalid_params"
	CodeAlreadyInitialized = "already_initialized"
	CodeInitFailed         = "init_failed"
	CodeResizeFailed       = "resize_failed"
)

// Request is a client call.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// InitParams are the parameters of init.
type InitParams struct {
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
	Cwd  string `json:"cwd"`
}

// ResizeParams are the parameters of resize.
type ResizeParams struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// DataParams carry raw terminal bytes, base64 encoded on the wire.
type DataParams struct {
	Data []byte `json:"data"`
}

// Response answers one Request.
type Response struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Push is a server-initiated notification.
type Push struct {
	Method string     `json:"method"`
	Params DataParams `json:"params"`
}

func okResponse(id string) Response {
	return Response{ID: id, OK: true}
}

func errorResponse(id, code, message string) Response {
	return Response{ID: id, Error: &Error{Code: code, Message: message}}
}

// sessionErrorCode maps bridge errors onto wire codes.
func sessionErrorCode(err error, fallback string) string {
	var validationErr *session.ValidationError

	switch {
	case errors.As(err, &validationErr):
		return CodeInvalidParams
	case errors.Is(err, session.ErrAlreadyInitialized):
		return CodeAlreadyInitialized
	default:
		return fallback
	}
}
