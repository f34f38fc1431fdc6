package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillsenselab/recap/util"
)

// Fallback when the configured size string does not parse.
const defaultMaxBodySize = 500 * 1024 * 1024

// BodySizeLimit caps the request body at maxSize (e.g. "500MB"). Oversized
// uploads fail mid-read with a 413 from MaxBytesReader.
func BodySizeLimit(maxSize string) Middleware {
	size := util.ParseSize(maxSize, defaultMaxBodySize)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, size)
			next.ServeHTTP(w, r)
		})
	}
}

// GinBodySizeLimit adapts BodySizeLimit for a gin handler chain.
func GinBodySizeLimit(maxSize string) gin.HandlerFunc {
	return GinWrap(BodySizeLimit(maxSize))
}
