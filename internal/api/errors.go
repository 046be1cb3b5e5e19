package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/logits"
	"github.com/samcharles93/charcomplete/internal/vocab"
)

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrModelNotFound  = errors.New("model not found")
)

type invalidRequestError struct {
	msg   string
	param string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(param, msg string) error {
	return invalidRequestError{msg: msg, param: param}
}

// apiError is the HTTP status and OpenAI-style error type for err.
type apiError struct {
	status  int
	errType string
	code    string
	param   string
}

func classify(err error) apiError {
	var inv invalidRequestError
	switch {
	case errors.As(err, &inv):
		return apiError{http.StatusBadRequest, "invalid_request_error", "", inv.param}
	case errors.Is(err, ErrInvalidRequest):
		return apiError{http.StatusBadRequest, "invalid_request_error", "", ""}
	case errors.Is(err, logits.ErrInvalidTemperature):
		return apiError{http.StatusBadRequest, "invalid_request_error", "invalid_temperature", "temperature"}
	case errors.Is(err, ErrModelNotFound):
		return apiError{http.StatusNotFound, "not_found_error", "model_not_found", "model"}
	case errors.Is(err, vocab.ErrUnknownCharacter):
		// the window holds a character the model never saw
		return apiError{http.StatusUnprocessableEntity, "invalid_request_error", "cannot_predict_here", "text"}
	case errors.Is(err, vocab.ErrAssetLoad):
		return apiError{http.StatusInternalServerError, "server_error", "model_load_failed", ""}
	case errors.Is(err, inference.ErrInferenceFailure):
		return apiError{http.StatusBadGateway, "server_error", "inference_failure", ""}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apiError{http.StatusServiceUnavailable, "server_error", "cancelled", ""}
	case errors.Is(err, logits.ErrDegenerateDistribution):
		return apiError{http.StatusInternalServerError, "server_error", "degenerate_distribution", ""}
	default:
		return apiError{http.StatusInternalServerError, "server_error", "", ""}
	}
}
