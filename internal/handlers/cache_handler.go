package handlers

import (
	"net/http"

	"mom-admin-api/internal/cache"

	"github.com/gin-gonic/gin"
)

// CacheAdmin is the part of a cache the monitoring endpoints need.
type CacheAdmin interface {
	Stats() cache.Stats
	Keys() []string
	Clear()
}

type CacheHandler struct {
	cache CacheAdmin
}

func NewCacheHandler(c CacheAdmin) *CacheHandler {
	return &CacheHandler{cache: c}
}

// GetStats returns cache statistics and the cached keys
// GET /api/cache/stats
func (h *CacheHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats": h.cache.Stats(),
		"keys":  h.cache.Keys(),
	})
}

// ClearCache drops every cached entry
// DELETE /api/cache
func (h *CacheHandler) ClearCache(c *gin.Context) {
	cleared := h.cache.Stats().Size
	h.cache.Clear()
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared", "cleared": cleared})
}
