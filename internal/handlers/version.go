package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/trp-api/internal/version"
)

// VersionHandler serves build information without authentication.
type VersionHandler struct {
	info version.BuildInfo
}

// NewVersionHandler snapshots the build information once; it cannot change
// while the process runs.
func NewVersionHandler() *VersionHandler {
	info := version.Info()
	info.Service = ServiceName
	return &VersionHandler{info: info}
}

// Get handles GET /api/version.
func (h *VersionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.info)
}
