package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"github.com/shaunfitzgarald/events-app-sub001/internal/status"
)

// apiError maps a service error to the HTTP error PocketBase renders.
func apiError(err error) error {
	switch {
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError(err.Error(), nil)

	case errors.Is(err, status.ErrTicketsDisabled),
		errors.Is(err, status.ErrSoldOut),
		errors.Is(err, status.ErrAlreadyCheckedIn),
		errors.Is(err, status.ErrNotActive),
		errors.Is(err, status.ErrAlreadyCancelled),
		errors.Is(err, status.ErrAlreadyRefunded),
		errors.Is(err, status.ErrHoldConflict):
		return apis.NewApiError(http.StatusConflict, err.Error(), nil)

	case errors.Is(err, status.ErrInvalidCode),
		errors.Is(err, status.ErrInvalidQRPayload),
		errors.Is(err, status.ErrEventMismatch):
		return apis.NewBadRequestError(err.Error(), nil)

	case errors.Is(err, status.ErrTooManyAttempts):
		return apis.NewTooManyRequestsError(err.Error(), nil)
	}

	slog.Error("ticket request failed", "error", err)
	return apis.NewInternalServerError("Something went wrong while processing your request.", nil)
}

func requireOwnerOrSuperuser(e *core.RequestEvent, ownerID string) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	if e.Auth.Id != ownerID && !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Access denied", nil)
	}
	return nil
}
