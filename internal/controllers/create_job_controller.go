package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/elqbulk/internal/services"
)

type createJobController struct{ svc services.JobService }

func NewCreateJobController(svc services.JobService) *createJobController {
	return &createJobController{svc}
}

func (h *createJobController) Handle(c *gin.Context) {
	req, err := bindCreateRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	job, existed, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	loggerFrom(c).Info("job accepted", "jobId", job.ID, "existed", existed, "principal", c.GetString("principal"))
	if existed {
		c.JSON(http.StatusOK, job)
		return
	}
	c.Header("Location", "/v1/elqbulk/jobs/"+job.ID)
	c.JSON(http.StatusAccepted, job)
}
