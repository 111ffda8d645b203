package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/elqbulk/internal/services"
)

type cancelJobController struct{ svc services.JobService }

func NewCancelJobController(svc services.JobService) *cancelJobController {
	return &cancelJobController{svc}
}

func (h *cancelJobController) Handle(c *gin.Context) {
	job, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if errors.Is(err, services.ErrJobFinished) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": job.Status})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}
