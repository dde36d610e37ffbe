package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/productstudio/studio/internal/app"
	"github.com/productstudio/studio/internal/services/products"
)

func CreateProductHandler(c *gin.Context) {
	var params products.CreateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		badRequest(c, "failed to parse request body")
		return
	}

	app := c.MustGet("app").(*app.App)
	product, err := app.Products.Create(c.Request.Context(), params)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, product)
}

func ListProductsHandler(c *gin.Context) {
	skip, ok := queryInt(c, "skip")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	app := c.MustGet("app").(*app.App)
	list, err := app.Products.List(c.Request.Context(), skip, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func GetProductHandler(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	product, err := app.Products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

func UpdateProductHandler(c *gin.Context) {
	var params products.UpdateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		badRequest(c, "failed to parse request body")
		return
	}

	app := c.MustGet("app").(*app.App)
	product, err := app.Products.Update(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

// DeleteProductHandler soft deletes a product, or removes it with all of its
// versions, references and jobs when purge=true.
func DeleteProductHandler(c *gin.Context) {
	purge := c.Query("purge") == "true"

	app := c.MustGet("app").(*app.App)
	if err := app.Products.Delete(c.Request.Context(), c.Param("id"), purge); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
