package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse sends the standard success envelope
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends the standard error envelope. details, when given, are merged
// into the body so clients can act on them (minimum_bid, retryable).
func JSONError(c *gin.Context, status int, err error, message string, details ...gin.H) {
	body := gin.H{
		"status":  status,
		"message": message,
		"error":   err.Error(),
	}
	for _, d := range details {
		for k, v := range d {
			body[k] = v
		}
	}
	c.JSON(status, body)
}
