package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"mom-admin-api/internal/docstore"
	"mom-admin-api/internal/middleware"
	"mom-admin-api/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// DocumentHandler serves documents of the remote store. Reads go through
// whatever caching the injected store does.
type DocumentHandler struct {
	store      docstore.Store
	restricted map[string]struct{}
	log        zerolog.Logger
}

// NewDocumentHandler serves store. Restricted paths can only be read by
// super administrators.
func NewDocumentHandler(store docstore.Store, log zerolog.Logger, restricted ...string) *DocumentHandler {
	h := &DocumentHandler{
		store:      store,
		restricted: make(map[string]struct{}, len(restricted)),
		log:        log.With().Str("component", "document_handler").Logger(),
	}
	for _, p := range restricted {
		if clean, err := docstore.CleanPath(p); err == nil {
			h.restricted[clean] = struct{}{}
		}
	}
	return h
}

func (h *DocumentHandler) storeError(c *gin.Context, path string, err error) {
	switch {
	case errors.Is(err, docstore.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document path"})
	case errors.Is(err, docstore.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
	default:
		h.log.Warn().Err(err).Str("path", path).Msg("document store call failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Document store unavailable"})
	}
}

// GetDocument returns the document at path
// GET /api/documents/*path
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	path, err := docstore.CleanPath(c.Param("path"))
	if err != nil {
		h.storeError(c, c.Param("path"), err)
		return
	}
	if _, ok := h.restricted[path]; ok {
		if level, _ := c.Get(middleware.ContextLevel); level != models.LevelSuperAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
	}

	doc, err := h.store.Read(c.Request.Context(), path)
	if err != nil {
		h.storeError(c, path, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
}

// PutDocument replaces the document at path with the JSON request body
// PUT /api/documents/*path
func (h *DocumentHandler) PutDocument(c *gin.Context) {
	path, err := docstore.CleanPath(c.Param("path"))
	if err != nil {
		h.storeError(c, c.Param("path"), err)
		return
	}
	body, err := c.GetRawData()
	if err != nil || !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be a JSON document"})
		return
	}

	if err := h.store.Write(c.Request.Context(), path, json.RawMessage(body)); err != nil {
		h.storeError(c, path, err)
		return
	}
	h.log.Info().Str("path", path).Str("by", c.GetString(middleware.ContextUsername)).Msg("document written")
	c.JSON(http.StatusOK, gin.H{"path": path, "message": "Document saved"})
}
