package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"

	"careerpath-api/internal/repository"
	"careerpath-api/internal/service"
	"careerpath-api/internal/storage"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrIncorrectPassword, http.StatusUnauthorized},
	{service.ErrEmailTaken, http.StatusConflict},
	{service.ErrAlreadyVerified, http.StatusConflict},
	{service.ErrTokenInvalid, http.StatusBadRequest},
	{service.ErrInvalidRole, http.StatusBadRequest},
	{service.ErrSkillNotFound, http.StatusNotFound},
	{repository.ErrNotFound, http.StatusNotFound},
	{repository.ErrStale, http.StatusConflict},
	{storage.ErrNotConfigured, http.StatusServiceUnavailable},
}

// writeError maps service errors onto status codes. Anything unrecognised is
// logged and reported as a bare 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "fail",
			"error":  "invalid request",
			"fields": verrs,
		})
		return
	}

	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			msg := m.err.Error()
			if m.err == repository.ErrNotFound {
				msg = "account not found"
			}
			c.JSON(m.status, gin.H{"status": "fail", "error": msg})
			return
		}
	}

	h.logger.WithError(err).WithField("route", c.FullPath()).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "something went wrong"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"status": "fail", "error": msg})
}
