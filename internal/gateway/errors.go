package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/antigravity-gateway/gateway/internal/gwerrors"
)

// surface names which inbound dialect an error envelope should be shaped
// for, so one error never leaks another surface's JSON shape.
type surface int

const (
	surfaceOpenAI surface = iota
	surfaceGemini
	surfaceClaude
)

func (s surface) respondError(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, err.Error()

	var gwErr *gwerrors.Error
	if errors.As(err, &gwErr) {
		status, message = gwErr.Status, gwErr.Error()
		if status == 0 {
			status = http.StatusBadGateway
		}
	}

	switch s {
	case surfaceOpenAI:
		c.JSON(status, gin.H{"error": gin.H{
			"message": message,
			"type":    "api_error",
		}})
	case surfaceGemini:
		c.JSON(status, gin.H{"error": gin.H{
			"code":    status,
			"message": message,
			"status":  "INTERNAL",
		}})
	case surfaceClaude:
		c.JSON(status, gin.H{"type": "error", "error": gin.H{
			"type":    "api_error",
			"message": message,
		}})
	}
}

func badRequest(c *gin.Context, s surface, message string) {
	s.respondError(c, gwerrors.New(http.StatusBadRequest, "invalid_request", message))
}
