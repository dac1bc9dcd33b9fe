package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"options-yield/services"
)

// statusForError maps service errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrDegenerateCapital):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrEmptyChain):
		return http.StatusNotFound
	case errors.Is(err, services.ErrMissingCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

func respondError(c *gin.Context, message string, err error) {
	c.JSON(statusForError(err), gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
