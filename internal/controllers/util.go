package controllers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

func loggerFrom(c *gin.Context) *slog.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

// bindCreateRequest decodes the body over default options so an omitted
// field keeps its default while an explicit zero stays zero.
func bindCreateRequest(c *gin.Context) (domain.CreateJobRequest, error) {
	req := domain.CreateJobRequest{Options: domain.DefaultSubmissionOptions()}
	err := c.ShouldBindJSON(&req)
	return req, err
}
