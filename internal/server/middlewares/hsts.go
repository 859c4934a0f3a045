package middlewares

import (
	"time"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
)

const DefaultHSTSMaxAge = 365 * 24 * time.Hour

// HSTS pins clients to https. It is only installed when the server terminates
// TLS itself; there is no plain listener, so nothing gets redirected.
func HSTS(maxAge time.Duration) gin.HandlerFunc {
	return secure.New(secure.Config{
		IsDevelopment:        false,
		STSSeconds:           int64(maxAge.Seconds()),
		STSIncludeSubdomains: true,
		// object content is served as application/octet-stream
		ContentTypeNosniff: true,
		FrameDeny:          true,
	})
}
