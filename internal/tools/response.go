// Package tools implements the outward tool-call RPC surface: each
// exported Dispatcher method synchronously returns one
// content-envelope Response, translating every failure into the
// stable dbgerr taxonomy rather than a host crash.
package tools

import (
	"encoding/json"

	"github.com/tmc/nodedbg/internal/dbgerr"
)

// ContentBlock is one block of a tool response's content array. The
// surface only ever emits a single text block whose payload is a JSON
// object.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Response is the content envelope every tool call returns.
type Response struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"is_error"`
}

func ok(payload interface{}) Response {
	text, err := json.Marshal(payload)
	if err != nil {
		return errorResponse(dbgerr.Wrap(err, dbgerr.Internal, "marshal tool response"))
	}
	return Response{Content: []ContentBlock{{Type: "text", Text: string(text)}}}
}

// errorPayload is the stable JSON shape for a tool-level failure: a
// taxonomy tag plus a human-readable message, never a stack trace or
// host-internal detail.
type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func errorResponse(err error) Response {
	de, ok := err.(*dbgerr.DebugError)
	if !ok {
		de = dbgerr.Wrap(err, dbgerr.Internal, "unexpected error")
	}
	payload := errorPayload{Error: string(de.Tag), Message: de.Message}
	text, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		text = []byte(`{"error":"internal","message":"failed to marshal error"}`)
	}
	return Response{Content: []ContentBlock{{Type: "text", Text: string(text)}}, IsError: true}
}
