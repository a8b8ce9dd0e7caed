package httpapi

import (
	"errors"
	"net/http"

	"pawprint-gateway/internal/blink"
	"pawprint-gateway/internal/session"
	"pawprint-gateway/internal/utils"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoDeviceSelected):
		return http.StatusPreconditionFailed
	case errors.Is(err, blink.ErrInvalidFrequency):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrWriteFailure), errors.Is(err, session.ErrCharacteristicNotFound):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		h.logger.Debug(op+" rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	utils.WriteError(w, status, err.Error())
}
