package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/elqbulk/internal/ingest"
	"github.com/osvaldoandrade/elqbulk/internal/services"
	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

var badRequestErrors = []error{
	ingest.ErrEmptyInput,
	ingest.ErrMalformedCSV,
	ingest.ErrNoHeaders,
	ingest.ErrUnsupportedEncoding,
	domain.ErrInvalidTarget,
	domain.ErrInvalidOptions,
	services.ErrNoRows,
	services.ErrUnknownOperation,
	services.ErrInvalidWebhook,
}

func statusFor(err error) int {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	switch {
	case errors.Is(err, ingest.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrTooManyJobs):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrJobFinished):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		loggerFrom(c).Error("request failed", "err", err)
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}
