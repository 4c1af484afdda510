package dap

import (
	"encoding/json"

	godap "github.com/google/go-dap"

	"github.com/basiclang/basic-dap/internal/errors"
	"github.com/basiclang/basic-dap/pkg/types"
)

// loadSourceRequest is the custom request that replaces the program
// text without launching. It is not part of the standard schema, so it
// is decoded by hand when the stock decoder rejects the command.
type loadSourceRequest struct {
	godap.Request
	Arguments types.LoadSourceArguments `json:"arguments"`
}

type loadSourceResponse struct {
	godap.Response
	Body loadSourceResponseBody `json:"body"`
}

type loadSourceResponseBody struct {
	Path string `json:"path"`
}

// unknownRequest captures just the envelope of a request the decoder
// did not recognize, enough to address an error response back to it.
type unknownRequest struct {
	godap.Request
}

// decodeMessage turns a raw frame into a protocol message. Commands
// outside the standard schema come back from the stock decoder as a
// field error on "command"; loadSource is recovered by hand, and any
// other unknown command is surfaced as an unknownRequest so the caller
// can reject it with a method-not-found error.
func decodeMessage(raw []byte) (godap.Message, error) {
	msg, err := godap.DecodeProtocolMessage(raw)
	if err == nil {
		return msg, nil
	}
	fieldErr, ok := err.(*godap.DecodeProtocolMessageFieldError)
	if !ok || fieldErr.FieldName != "command" {
		return nil, errors.BadFrame(err)
	}
	if fieldErr.FieldValue == "loadSource" {
		var req loadSourceRequest
		if uerr := json.Unmarshal(raw, &req); uerr != nil {
			return nil, errors.BadFrame(uerr)
		}
		return &req, nil
	}
	var req unknownRequest
	if uerr := json.Unmarshal(raw, &req); uerr != nil {
		return nil, errors.BadFrame(uerr)
	}
	return &req, nil
}
