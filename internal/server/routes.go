package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openmined/syftblob/internal/server/handlers/api"
	"github.com/openmined/syftblob/internal/server/handlers/object"
	"github.com/openmined/syftblob/internal/server/handlers/upload"
	"github.com/openmined/syftblob/internal/server/metrics"
	"github.com/openmined/syftblob/internal/server/middlewares"
	"github.com/openmined/syftblob/internal/version"
)

func SetupRoutes(config *Config, svc *Services) http.Handler {
	r := gin.New()

	uploadH := upload.New(svc.Uploader, config.Upload.ChunkSize)
	objectH := object.New(svc.Uploader)

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	r.Use(middlewares.CORS(config.HTTP.CORSOrigins))
	r.Use(middlewares.GZIP())
	if config.HTTP.TLSEnabled() {
		r.Use(middlewares.HSTS(middlewares.DefaultHSTSMaxAge))
	}

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	rateLimit := config.HTTP.RateLimit
	if rateLimit == "" {
		rateLimit = DefaultRateLimit
	}

	v1 := r.Group("/api/v1")
	v1.Use(middlewares.RateLimiter(rateLimit))
	{
		// multipart uploads
		v1.POST("/buckets/:bucket/uploads", uploadH.Initiate)
		v1.PATCH("/uploads/:id/chunks/:index", uploadH.UploadChunk)
		v1.GET("/uploads/:id", uploadH.Status)
		v1.POST("/uploads/:id/finalize", uploadH.Finalize)
		v1.DELETE("/uploads/:id", uploadH.Cancel)

		// objects
		v1.PUT("/buckets/:bucket/objects", objectH.Put)
		v1.POST("/buckets/:bucket/objects/rapid", objectH.Rapid)
		v1.POST("/buckets/:bucket/objects/confirm", objectH.Confirm)
		v1.GET("/buckets/:bucket/objects", objectH.List)
		v1.GET("/buckets/:bucket/objects/:id", objectH.Get)
		v1.GET("/buckets/:bucket/objects/:id/content", objectH.Content)
		v1.DELETE("/buckets/:bucket/objects/:id", objectH.Delete)

		v1.GET("/buckets", BucketsHandler(svc))
	}

	r.NoRoute(func(c *gin.Context) {
		c.PureJSON(http.StatusNotFound, api.SyftAPIError{
			Code:    api.CodeInvalidRequest,
			Message: "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.PureJSON(http.StatusMethodNotAllowed, api.SyftAPIError{
			Code:    api.CodeInvalidRequest,
			Message: "method not allowed",
		})
	})

	return r.Handler()
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// BucketsHandler lists the registered buckets and the upload parameters clients need
func BucketsHandler(svc *Services) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.PureJSON(http.StatusOK, gin.H{
			"buckets":         svc.Buckets.List(),
			"digestAlgorithm": svc.Uploader.Addresser().Name(),
		})
	}
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
