package controllers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/elqbulk/internal/export"
	"github.com/osvaldoandrade/elqbulk/internal/services"
	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

type getResultsController struct{ svc services.JobService }

func NewGetResultsController(svc services.JobService) *getResultsController {
	return &getResultsController{svc}
}

// Handle serves the job output document as JSON, or the row results as CSV
// with ?format=csv.
func (h *getResultsController) Handle(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	job, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	results, err := h.svc.Results(ctx, job.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	ts := job.UpdatedAt
	if job.FinishedAt != nil {
		ts = *job.FinishedAt
	}
	out := &domain.JobOutput{
		Summary:    job.Summary,
		Validation: job.Validation,
		Results:    results,
		Timestamp:  ts.UTC().Truncate(time.Millisecond),
	}
	c.Header("Content-Type", format.ContentType())
	if format == export.FormatCSV {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+".csv"))
	}
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, format, out); err != nil {
		loggerFrom(c).Error("write results failed", "jobId", job.ID, "err", err)
	}
}
