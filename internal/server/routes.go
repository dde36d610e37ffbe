package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/productstudio/studio/internal/api"
	"github.com/productstudio/studio/internal/api/middleware"
	"github.com/productstudio/studio/internal/app"
)

func (s *Server) SetupRoutes(app *app.App) {
	// Health check endpoint
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Not an API, just a simple file server endpoint
	s.ginEngine.GET("/files/*handle", handlerWrapper(app, api.GetFile))

	apiV1 := s.ginEngine.Group("/api/v1")

	if !app.Config().DisableAuth {
		apiV1.Use(handlerWrapper(app, middleware.AuthenticationMiddleware))
	}

	apiV1.POST("/products", handlerWrapper(app, api.CreateProductHandler))
	apiV1.GET("/products", handlerWrapper(app, api.ListProductsHandler))
	apiV1.GET("/products/:id", handlerWrapper(app, api.GetProductHandler))
	apiV1.PUT("/products/:id", handlerWrapper(app, api.UpdateProductHandler))
	apiV1.DELETE("/products/:id", handlerWrapper(app, api.DeleteProductHandler))

	apiV1.POST("/products/:id/specifications", handlerWrapper(app, api.CreateSpecificationHandler))
	apiV1.GET("/products/:id/specifications", handlerWrapper(app, api.ListSpecificationsHandler))
	apiV1.GET("/products/:id/specifications/active", handlerWrapper(app, api.GetActiveSpecificationHandler))
	apiV1.GET("/products/:id/specifications/versions/:version", handlerWrapper(app, api.GetSpecificationVersionHandler))
	apiV1.POST("/products/:id/analyze", handlerWrapper(app, api.AnalyzeProductHandler))

	apiV1.PUT("/specifications/:specId", handlerWrapper(app, api.ReviseSpecificationHandler))
	apiV1.POST("/specifications/:specId/activate", handlerWrapper(app, api.ActivateSpecificationHandler))
	apiV1.DELETE("/specifications/:specId", handlerWrapper(app, api.DeleteSpecificationHandler))

	apiV1.GET("/products/:id/reference-images", handlerWrapper(app, api.ListReferenceImagesHandler))
	apiV1.POST("/products/:id/reference-images", handlerWrapper(app, api.UploadReferenceImageHandler))
	apiV1.DELETE("/reference-images/:imageId", handlerWrapper(app, api.DeleteReferenceImageHandler))
	apiV1.POST("/reference-images/:imageId/primary", handlerWrapper(app, api.SetPrimaryReferenceImageHandler))
	apiV1.PUT("/reference-images/:imageId/order", handlerWrapper(app, api.MoveReferenceImageHandler))

	apiV1.POST("/products/:id/generate", handlerWrapper(app, api.SubmitGenerationHandler))
	apiV1.GET("/products/:id/generations", handlerWrapper(app, api.ListGenerationsHandler))
	apiV1.GET("/products/:id/gallery", handlerWrapper(app, api.GalleryHandler))
	apiV1.GET("/generation-requests/:jobId", handlerWrapper(app, api.GetGenerationHandler))
	apiV1.GET("/generation-requests/:jobId/images", handlerWrapper(app, api.GetGenerationImagesHandler))
	apiV1.DELETE("/generation-requests/:jobId", handlerWrapper(app, api.DeleteGenerationHandler))
}

func handlerWrapper(app *app.App, f func(c *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("app", app)
		f(ctx)
	}
}
