package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/productstudio/studio/internal/app"
	"github.com/productstudio/studio/internal/services/specification"
	"github.com/productstudio/studio/internal/types"
)

type SpecificationRequest struct {
	Content    string `json:"content" binding:"required"`
	ChangeNote string `json:"change_note"`
}

func CreateSpecificationHandler(c *gin.Context) {
	var req SpecificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "content is required")
		return
	}

	app := c.MustGet("app").(*app.App)
	spec, err := app.Specifications.Create(c.Request.Context(), c.Param("id"), req.Content, specification.CreateOptions{
		Note: req.ChangeNote,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, spec)
}

func ListSpecificationsHandler(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	specs, err := app.Specifications.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, specs)
}

func GetActiveSpecificationHandler(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	spec, err := app.Specifications.GetActive(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if spec == nil {
		abortWithError(c, types.NotFound("product %s has no active specification", c.Param("id")))
		return
	}

	c.JSON(http.StatusOK, spec)
}

func GetSpecificationVersionHandler(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		badRequest(c, "invalid version number")
		return
	}

	app := c.MustGet("app").(*app.App)
	spec, err := app.Specifications.GetByNumber(c.Request.Context(), c.Param("id"), version)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, spec)
}

// ReviseSpecificationHandler stores an edited copy of a version as the next
// version of the same product.
func ReviseSpecificationHandler(c *gin.Context) {
	var req SpecificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "content is required")
		return
	}

	app := c.MustGet("app").(*app.App)
	spec, err := app.Specifications.Revise(c.Request.Context(), c.Param("specId"), req.Content, req.ChangeNote)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, spec)
}

func ActivateSpecificationHandler(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	spec, err := app.Specifications.Activate(c.Request.Context(), c.Param("specId"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, spec)
}

func DeleteSpecificationHandler(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	if err := app.Specifications.Delete(c.Request.Context(), c.Param("specId")); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func AnalyzeProductHandler(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	if app.Analysis == nil {
		abortWithError(c, types.PreconditionFailed("product analysis is not configured"))
		return
	}

	spec, err := app.Analysis.Analyze(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, spec)
}
