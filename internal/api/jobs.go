package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/productstudio/studio/internal/app"
	"github.com/productstudio/studio/internal/types"
)

// SubmitGenerationHandler accepts a JSON or msgpack body, records a pending
// job and returns before any generation work starts.
func SubmitGenerationHandler(c *gin.Context) {
	var params = types.GenerateParamsRequest{}
	contentType := c.ContentType()
	if contentType == "" {
		contentType = "application/json" // Default to JSON
	}

	switch contentType {
	case "application/msgpack", "application/x-msgpack":
		if err := c.ShouldBindWith(&params, binding.MsgPack); err != nil {
			badRequest(c, "failed to parse msgpack request body")
			return
		}
	case "application/json":
		if err := c.ShouldBindWith(&params, binding.JSON); err != nil {
			badRequest(c, "failed to parse json request body")
			return
		}
	default:
		badRequest(c, "unsupported content type: "+contentType)
		return
	}

	app := c.MustGet("app").(*app.App)
	job, err := app.Orchestrator.Submit(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, types.GenerationResponse{
		ID:     job.ID.String(),
		Status: string(job.Status),
	})
}

func ListGenerationsHandler(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}

	app := c.MustGet("app").(*app.App)
	jobs, err := app.Ledger.List(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobs)
}

func GalleryHandler(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}

	app := c.MustGet("app").(*app.App)
	artifacts, err := app.Ledger.Gallery(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, artifacts)
}

func GetGenerationHandler(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	job, err := app.Ledger.Get(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func GetGenerationImagesHandler(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	artifacts, err := app.Ledger.Artifacts(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, artifacts)
}

func DeleteGenerationHandler(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	if err := app.Ledger.Delete(c.Request.Context(), c.Param("jobId")); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
