package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/antigravity-gateway/gateway/internal/translator/request"
)

func (s *Server) handleOpenAIModels(c *gin.Context) {
	ids := request.ListedModels()
	data := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		data = append(data, gin.H{
			"id":       id,
			"object":   "model",
			"owned_by": "antigravity",
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

func (s *Server) handleGeminiModelList(c *gin.Context) {
	ids := request.ListedModels()
	models := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		models = append(models, geminiModelObject(id))
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (s *Server) handleGeminiModelGet(c *gin.Context) {
	model := c.Param("model")
	for _, id := range request.ListedModels() {
		if id == model {
			c.JSON(http.StatusOK, geminiModelObject(id))
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": 404, "message": "model not found"}})
}

func geminiModelObject(id string) gin.H {
	return gin.H{
		"name":                       "models/" + id,
		"displayName":                id,
		"supportedGenerationMethods": []string{"generateContent", "streamGenerateContent"},
	}
}
