package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SizeLimitConfig represents size limit configuration
type SizeLimitConfig struct {
	MaxBodySize   int64
	MaxUploadSize int64
	UploadPaths   []string
	ErrorMessage  string
}

func DefaultSizeLimitConfig() SizeLimitConfig {
	return SizeLimitConfig{
		MaxBodySize:   1 << 20,  // 1MB
		MaxUploadSize: 64 << 20, // multi-file prescription uploads
		ErrorMessage:  "Request size exceeds limit",
	}
}

// SizeLimit limits request sizes. Upload paths get the larger multipart
// limit, everything else the JSON body limit.
func SizeLimit(config SizeLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := config.MaxBodySize
		for _, path := range config.UploadPaths {
			if c.Request.URL.Path == path || matchSuffix(c.Request.URL.Path, path) {
				limit = config.MaxUploadSize
				break
			}
		}

		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("%s: body size exceeds %d bytes",
					config.ErrorMessage, limit),
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func matchSuffix(path, pattern string) bool {
	if len(pattern) == 0 || pattern[0] != '*' {
		return false
	}
	suffix := pattern[1:]
	return len(path) >= len(suffix) && path[len(path)-len(suffix):] == suffix
}
