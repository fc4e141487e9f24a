package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	dErrors "gatekeeper/pkg/domain-errors"
)

// ErrBodyTooLarge is the error field written when a body exceeds its limit.
const ErrBodyTooLarge = "request_too_large"

// Request hooks run after decoding in the order Sanitize, Normalize, Validate.
type (
	Sanitizable  interface{ Sanitize() }
	Normalizable interface{ Normalize() }
	Validatable  interface{ Validate() error }
)

// PrepareRequest runs whichever request hooks req implements.
func PrepareRequest(req any) error {
	if s, ok := req.(Sanitizable); ok {
		s.Sanitize()
	}
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := req.(Validatable); ok {
		return v.Validate()
	}
	return nil
}

// decodeStrict reads exactly one JSON value with no unknown fields.
func decodeStrict(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("body must contain a single JSON value")
	}
	return nil
}

func describeDecodeError(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return "request body is empty"
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return "request body is not valid JSON"
	case errors.As(err, &typeErr):
		return "field " + typeErr.Field + " has the wrong type"
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return "unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
	}
	return "invalid request body"
}

// DecodeAndPrepare decodes the body into T and runs its request hooks. On
// failure the error response is already written and ok is false.
//
//	req, ok := httputil.DecodeAndPrepare[models.CreateRequest](w, r, h.logger, ctx, requestID)
//	if !ok {
//	    return
//	}
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req := new(T)
	if err := decodeStrict(r.Body, req); err != nil {
		logger.WarnContext(ctx, "rejected request body", "error", err, "request_id", requestID)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: ErrBodyTooLarge})
			return nil, false
		}
		WriteError(w, dErrors.New(dErrors.CodeInvalidRequest, describeDecodeError(err)))
		return nil, false
	}

	if err := PrepareRequest(req); err != nil {
		logger.WarnContext(ctx, "request failed validation", "error", err, "request_id", requestID)
		if _, ok := dErrors.As(err); !ok {
			err = dErrors.New(dErrors.CodeInvalidRequest, err.Error())
		}
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
