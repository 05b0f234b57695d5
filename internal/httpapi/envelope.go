// Package httpapi is the gin HTTP surface over internal/ingress: bearer
// auth, the {"success":true,"value":...}/{"error":"..."} envelope, and one
// handler per route.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"segflow/pkg/errutil"
)

// respondValue writes {"success":true,"value":payload}.
func respondValue(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "value": payload})
}

// respondError writes {"error":"..."} with the status HTTPStatus(err)
// derives from err, defaulting to 500.
func respondError(c *gin.Context, err error) {
	status := errutil.HTTPStatus(err)
	message := err.Error()
	var base errutil.BaseError
	if errors.As(err, &base) {
		message = base.Message
	}
	c.JSON(status, gin.H{"error": message})
}
