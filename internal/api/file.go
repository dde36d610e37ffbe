package api

import (
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/productstudio/studio/internal/app"
)

// GetFile streams a stored file by its handle through the configured storage.
func GetFile(c *gin.Context) {
	handle := strings.TrimPrefix(c.Param("handle"), "/")
	if handle == "" {
		c.JSON(http.StatusNotFound, gin.H{"message": "file not found"})
		return
	}

	app := c.MustGet("app").(*app.App)
	content, err := app.Storage().Read(c.Request.Context(), handle)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, mimetype.Detect(content).String(), content)
}
