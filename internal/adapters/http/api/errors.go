package api

import (
	"errors"
	"fmt"
	"net/http"

	app "github.com/okian/signpost/internal/app"
	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/internal/domain/retraction"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrBackpressure = errors.New("backpressure")
)

// Error codes returned in the body of failed requests.
const (
	CodeInvalidInput  = "invalid_input"
	CodeNotFound      = "not_found"
	CodeBackpressure  = "backpressure"
	CodeInternalError = "internal_error"
)

// Error carries the failing operation and the kind used to pick a status.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Kind == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of kind for op.
func NewKind(op string, kind error) error { return &Error{Op: op, Kind: kind} }

// WrapKind wraps err as kind for op.
func WrapKind(op string, kind, err error) error { return &Error{Op: op, Kind: kind, Err: err} }

// Wrap annotates err with op; its status comes from the cause.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// classify maps an error to its HTTP status and body code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBackpressure), errors.Is(err, app.ErrBackpressure):
		return http.StatusTooManyRequests, CodeBackpressure
	case errors.Is(err, ErrNotFound), errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidClaim),
		errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrUnknownPreset),
		errors.Is(err, retraction.ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidInput
	}
	return http.StatusInternalServerError, CodeInternalError
}
