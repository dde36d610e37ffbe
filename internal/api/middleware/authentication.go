package middleware

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/productstudio/studio/internal/app"
	"github.com/productstudio/studio/internal/utils/hashutil"
	"go.uber.org/zap"
)

const APIKeyHeader = "X-API-Key"

func AuthenticationMiddleware(ctx *gin.Context) {
	authorization := ctx.Request.Header.Get("Authorization")
	apikey := ctx.Request.Header.Get(APIKeyHeader)

	app := ctx.MustGet("app").(*app.App)

	if apikey != "" {
		apikeyHash := hashutil.Sha3256Hash([]byte(apikey))
		result, err := app.APIKeyRepository.GetAPIKeyWithHash(ctx.Request.Context(), apikeyHash)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "The provided API key is invalid"})
				return
			}

			app.Logger.Error("Database error while checking API key", zap.Error(err))
			ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
			return
		}

		if result.IsRevoked {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "The provided API key is revoked"})
			return
		}
	} else if authorization != "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token based authorization is not allowed"})
		return
	} else {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized access"})
		return
	}

	ctx.Next()
}
