package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/elqbulk/internal/services"
)

type operationsController struct{ ops *services.OperationRegistry }

func NewOperationsController(ops *services.OperationRegistry) *operationsController {
	return &operationsController{ops}
}

func (h *operationsController) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operations": h.ops.Describe()})
}
