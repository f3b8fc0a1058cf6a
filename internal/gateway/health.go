package gateway

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.deps.StartedAt).Seconds(),
	})
}

func (s *Server) handleMemory(c *gin.Context) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	c.JSON(http.StatusOK, gin.H{
		"heapAlloc":    stats.HeapAlloc,
		"heapSys":      stats.HeapSys,
		"numGoroutine": runtime.NumGoroutine(),
		"regulator":    s.deps.Memory.Snapshot(),
	})
}
