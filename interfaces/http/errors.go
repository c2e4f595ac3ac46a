package httpiface

import (
	"net/http"

	domain "github.com/nomadictuba2005/claude-code-api/domain/chat"

	"github.com/gin-gonic/gin"
)

var statusByKind = map[domain.ErrorKind]int{
	domain.KindMalformedRequest:    http.StatusBadRequest,
	domain.KindInvalidModel:        http.StatusBadRequest,
	domain.KindUpstreamTimeout:     http.StatusGatewayTimeout,
	domain.KindUpstreamFailure:     http.StatusBadGateway,
	domain.KindExecutableNotFound:  http.StatusServiceUnavailable,
	domain.KindUpstreamUnavailable: http.StatusServiceUnavailable,
}

// StatusFor maps an error to its HTTP status code
func StatusFor(err error) int {
	if code, ok := statusByKind[domain.KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// writeError renders err in the API error envelope. Internal errors are not
// echoed to the caller.
func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	message := err.Error()
	if kind == domain.KindInternal {
		message = "Failed to process request"
	}
	c.JSON(StatusFor(err), domain.ErrorResponse{Error: message, Type: string(kind)})
}
