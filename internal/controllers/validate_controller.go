package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/elqbulk/internal/services"
)

type validateController struct{ svc services.JobService }

func NewValidateController(svc services.JobService) *validateController {
	return &validateController{svc}
}

func (h *validateController) Handle(c *gin.Context) {
	req, err := bindCreateRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	report, err := h.svc.Preview(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"validation": report})
}
