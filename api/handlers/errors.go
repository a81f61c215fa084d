package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/media-dl-go/internal/domain"
)

// StatusClientClosedRequest is logged when the client went away mid-job
const StatusClientClosedRequest = 499

// StatusFor maps an error kind to an HTTP status code
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindExtraction, domain.KindFetch:
		return http.StatusBadGateway
	case domain.KindCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": message} with the status for err. Only the
// public message reaches the client.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(StatusFor(domain.KindOf(err)), gin.H{
		"error": domain.PublicMessage(err),
	})
}
