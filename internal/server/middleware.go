package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "Stripe-Signature"

// MaxBodyBytes caps the request body. Reads past the limit fail.
func MaxBodyBytes(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
