package server

import (
	"errors"
	"net/http"

	"audioportal/core/portal"
	"audioportal/logger"
	"audioportal/model"
)

// statusFor maps a flow error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, portal.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, portal.ErrNotFound), errors.Is(err, portal.ErrTranscriptionUnavailable):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes {message, error}. message is used for server-side
// failures; client errors get a message describing what was wrong.
func writeError(w http.ResponseWriter, err error, message string, audio *model.AudioRecord) {
	cause := err.Error()
	var perr *portal.Error
	if errors.As(err, &perr) {
		cause = perr.Cause()
	}

	switch {
	case errors.Is(err, portal.ErrInvalidInput):
		message = cause
	case errors.Is(err, portal.ErrNotFound):
		message = "Audio not found"
	case errors.Is(err, portal.ErrTranscriptionUnavailable):
		message = "Transcription not available"
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(message, logger.ErrorField(err))
	} else {
		logger.Warn(message, logger.ErrorField(err))
	}
	writeJSON(w, status, errorResponse{Message: message, Error: cause, Audio: audio})
}
