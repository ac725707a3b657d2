package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/komfyrvakt/komfyrvakt/internal"
	"github.com/komfyrvakt/komfyrvakt/pkg/datamodel"
	"github.com/komfyrvakt/komfyrvakt/pkg/kvstore"
	"github.com/komfyrvakt/komfyrvakt/pkg/logstore"
	"go.uber.org/zap"
)

// handleError maps domain errors to status codes. extra is merged into the response body.
func handleError(c *gin.Context, err error, extra gin.H) {
	if err == nil {
		err = errors.New("unknown error")
	}
	erx := internal.SanitizeString(err.Error())

	status := http.StatusInternalServerError
	message := "The server had an internal error."
	switch {
	case errors.Is(err, datamodel.ErrValidation):
		status = http.StatusBadRequest
		message = "You have provided a wrong input. Please check your parameters."
	case errors.Is(err, logstore.ErrNotFound):
		status = http.StatusNotFound
		message = "The requested log entry was not found."
	case errors.Is(err, kvstore.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		message = "The log store is currently unavailable. Please retry later."
	}

	if status >= http.StatusInternalServerError {
		zap.S().Errorw("Request failed", "route", c.FullPath(), "error", erx)
	} else {
		zap.S().Debugw("Request rejected", "route", c.FullPath(), "error", erx)
	}

	body := gin.H{
		"error":   erx,
		"status":  status,
		"message": message,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}

func handleInvalidInputError(c *gin.Context, field string, reason string) {
	handleError(c, datamodel.NewValidationError(field, reason), nil)
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthorized",
		"status":  http.StatusUnauthorized,
		"message": message,
	})
}
