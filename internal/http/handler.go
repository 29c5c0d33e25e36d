package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/resampler/internal/usecase"
)

// Handler handles HTTP requests for resampling.
type Handler struct {
	resampleUC *usecase.ResampleUseCase
}

// NewHandler creates a new HTTP handler.
func NewHandler(resampleUC *usecase.ResampleUseCase) *Handler {
	return &Handler{
		resampleUC: resampleUC,
	}
}

// Resample handles POST /v1/resample.
func (h *Handler) Resample(c *gin.Context) {
	var req usecase.ResampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	// Execute use case.
	response, err := h.resampleUC.Execute(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, response)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrNotFound):
		return http.StatusNotFound
	case usecase.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ListAreas handles GET /v1/areas.
func (h *Handler) ListAreas(c *gin.Context) {
	list := h.resampleUC.Areas()
	c.JSON(http.StatusOK, gin.H{
		"areas": list,
		"count": len(list),
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
