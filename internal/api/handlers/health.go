package handlers

import (
	"net/http"

	"github.com/Conceptual-Machines/daytale-api/internal/llm"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	provider       llm.Provider
	promptTemplate string
}

func NewHealthHandler(provider llm.Provider, promptTemplate string) *HealthHandler {
	return &HealthHandler{provider: provider, promptTemplate: promptTemplate}
}

// HealthCheck returns the health status of the API. A missing upstream
// key is reported but does not make the service unhealthy.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	configured := h.provider != nil && h.provider.Available()

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"upstream": gin.H{
			"configured": configured,
			"model":      llm.Model,
		},
		"prompt_template": h.promptTemplate,
	})
}
