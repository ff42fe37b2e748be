package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// decodeAPIError turns an error response into a RejectedError carrying the
// server's message. The API answers with {"message": "..."} or, for
// validation failures, {"message": ["...", "..."]}. Bodies that are not such
// a payload, proxy error pages included, leave Message empty.
func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	rejected := &sessionmodel.RejectedError{Status: resp.StatusCode}

	var payload struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if len(data) == 0 || json.Unmarshal(data, &payload) != nil {
		return rejected
	}

	var single string
	var many []string
	switch {
	case json.Unmarshal(payload.Message, &single) == nil && single != "":
		rejected.Message = single
	case json.Unmarshal(payload.Message, &many) == nil && len(many) > 0:
		rejected.Message = strings.Join(many, "\n")
	default:
		rejected.Message = strings.TrimSpace(payload.Error)
	}
	return rejected
}

// classifyTransportError keeps errors the session transport already
// classified and marks everything else as a network failure.
func classifyTransportError(op string, err error) error {
	switch {
	case errors.Is(err, sessionmodel.ErrAuthExpired),
		errors.Is(err, sessionmodel.ErrNetworkUnreachable):
		return err
	case errors.Is(err, context.Canceled):
		return errors.Wrap(err, op)
	default:
		return &sessionmodel.NetworkError{Op: op, Cause: err}
	}
}
