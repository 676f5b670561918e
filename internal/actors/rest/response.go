package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rbroggi/slotcast/internal/core/model"
	log "github.com/sirupsen/logrus"
)

// Error kinds reported in failure envelopes.
const (
	kindValidationFailed  = "ValidationFailed"
	kindDuplicateResource = "DuplicateResource"
	kindNotFound          = "NotFound"
	kindUnauthorized      = "Unauthorized"
	kindForbidden         = "Forbidden"
	kindConflict          = "Conflict"
	kindDependencyFailed  = "DependencyFailed"
	kindDependencyTimeout = "DependencyTimeout"
	kindNoAvailableAvatar = "NoAvailableAvatar"
	kindNotImplemented    = "NotImplemented"
	kindMethodNotAllowed  = "MethodNotAllowed"
	kindRateLimited       = "RateLimited"
	kindInternalError     = "InternalError"
)

// statusSuccess flags success envelopes. Failure envelopes carry 0.
const statusSuccess = 1

type successEnvelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorEnvelope struct {
	Status  int                `json:"status"`
	Kind    string             `json:"kind"`
	Message string             `json:"message"`
	Errors  []model.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("error encoding response body")
	}
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, successEnvelope{Status: statusSuccess, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, body := errorResponse(err)
	if code >= http.StatusInternalServerError {
		log.WithError(err).
			WithField("request-id", requestID(r.Context())).
			WithField("path", r.URL.Path).
			Error("request failed")
	}
	writeJSON(w, code, body)
}

// errorResponse maps err to its status code and failure envelope. Order matters: provider timeouts
// also wrap model.ErrDependencyFailed.
func errorResponse(err error) (int, errorEnvelope) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorEnvelope{Kind: kindValidationFailed, Message: "Validation Error.", Errors: verr.Fields}
	case errors.Is(err, model.ErrNoFieldsProvided):
		return http.StatusBadRequest, errorEnvelope{Kind: kindValidationFailed, Message: err.Error()}
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized, errorEnvelope{Kind: kindUnauthorized, Message: err.Error()}
	case errors.Is(err, model.ErrNotOwner):
		return http.StatusForbidden, errorEnvelope{Kind: kindForbidden, Message: err.Error()}
	case errors.Is(err, model.ErrDuplicate):
		return http.StatusConflict, errorEnvelope{Kind: kindDuplicateResource, Message: err.Error()}
	case errors.Is(err, model.ErrSessionFull):
		return http.StatusConflict, errorEnvelope{Kind: kindConflict, Message: err.Error()}
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, errorEnvelope{Kind: kindNotFound, Message: err.Error()}
	case errors.Is(err, model.ErrDependencyTimeout):
		return http.StatusGatewayTimeout, errorEnvelope{Kind: kindDependencyTimeout, Message: err.Error()}
	case errors.Is(err, model.ErrDependencyFailed):
		return http.StatusBadGateway, errorEnvelope{Kind: kindDependencyFailed, Message: err.Error()}
	case errors.Is(err, model.ErrNoAvailableAvatar):
		return http.StatusServiceUnavailable, errorEnvelope{Kind: kindNoAvailableAvatar, Message: err.Error()}
	case errors.Is(err, model.ErrNotImplemented):
		return http.StatusNotImplemented, errorEnvelope{Kind: kindNotImplemented, Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorEnvelope{Kind: kindInternalError, Message: "internal error"}
	}
}

// routingErrorHandler renders unmatched routes in the failure envelope instead of the gateway's
// gRPC status body.
func routingErrorHandler(_ context.Context, _ *runtime.ServeMux, _ runtime.Marshaler, w http.ResponseWriter, _ *http.Request, code int) {
	switch code {
	case http.StatusNotFound:
		writeJSON(w, code, errorEnvelope{Kind: kindNotFound, Message: "route not found"})
	case http.StatusMethodNotAllowed:
		writeJSON(w, code, errorEnvelope{Kind: kindMethodNotAllowed, Message: "method not allowed"})
	default:
		writeJSON(w, code, errorEnvelope{Kind: kindValidationFailed, Message: http.StatusText(code)})
	}
}
