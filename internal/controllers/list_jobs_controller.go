package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/elqbulk/internal/services"
)

type listJobsController struct{ svc services.JobService }

func NewListJobsController(svc services.JobService) *listJobsController {
	return &listJobsController{svc}
}

func (h *listJobsController) Handle(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' (must be a positive integer)"})
			return
		}
		limit = n
	}
	jobs, err := h.svc.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}
