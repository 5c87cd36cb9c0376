package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"teacher-dashboard-api/utils"
)

// multipartOverhead leaves room for form fields and part headers around the file.
const multipartOverhead = 1 << 20

// RequestSizeLimit rejects bodies whose declared length exceeds maxSize plus
// multipart overhead, and caps the body reader for requests that lie about it.
// The rejection is the same 400 the upload handler gives for an oversized file.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	limit := maxSize + multipartOverhead
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			utils.RespondWithAPIError(c, utils.FileTooLarge(c.Request.ContentLength, maxSize))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
