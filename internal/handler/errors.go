package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/storefront-api/internal/middleware"
	"github.com/flicky/storefront-api/internal/service"
)

// statusFor maps a service error to its HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrOutOfStock),
		errors.Is(err, service.ErrTransactionConflict),
		errors.Is(err, service.ErrProductInUse),
		errors.Is(err, service.ErrDuplicateName),
		errors.Is(err, service.ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrNotInCart),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidReference):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrOrderAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, log *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.ErrorContext(c.Request.Context(), "request failed",
			"error", err,
			"route", c.FullPath(),
			"request_id", middleware.GetRequestID(c),
		)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{"error": err.Error()}
	if errors.Is(err, service.ErrTransactionConflict) {
		body["error"] = "concurrent update, please retry"
		body["retryable"] = true
	}
	c.JSON(status, body)
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func parseUUID(c *gin.Context, raw, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what})
		return uuid.Nil, false
	}
	return id, true
}
