package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/productstudio/studio/internal/app"
	"github.com/productstudio/studio/internal/services/references"
)

type MoveRequest struct {
	DisplayOrder *int `json:"display_order" binding:"required"`
}

func ListReferenceImagesHandler(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	images, err := app.References.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, images)
}

func UploadReferenceImageHandler(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "failed to parse request body")
		return
	}

	content, err := file.Open()
	if err != nil {
		badRequest(c, "failed to open file")
		return
	}
	defer content.Close()

	app := c.MustGet("app").(*app.App)

	// one byte past the limit is enough for Add to reject the upload
	limit := app.Config().References.MaxUploadBytes
	fileBytes, err := io.ReadAll(io.LimitReader(content, limit+1))
	if err != nil {
		badRequest(c, "failed to read file")
		return
	}

	image, err := app.References.Add(c.Request.Context(), c.Param("id"), references.Upload{
		Filename: file.Filename,
		Content:  fileBytes,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, image)
}

func DeleteReferenceImageHandler(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	if err := app.References.Remove(c.Request.Context(), c.Param("imageId")); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func SetPrimaryReferenceImageHandler(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	image, err := app.References.SetPrimary(c.Request.Context(), c.Param("imageId"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, image)
}

func MoveReferenceImageHandler(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "display_order is required")
		return
	}

	app := c.MustGet("app").(*app.App)
	image, err := app.References.Move(c.Request.Context(), c.Param("imageId"), *req.DisplayOrder)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, image)
}
