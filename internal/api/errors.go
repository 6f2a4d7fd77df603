package api

import (
	"context"
	"errors"
	"net/http"

	"course-service/internal/service"
	"course-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusClientClosedRequest is reported when the caller went away mid-request
const statusClientClosedRequest = 499

// respondError maps a service failure to an HTTP response
func respondError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		util.GetLogger().Debug("Request cancelled by client", zap.String("path", c.FullPath()))
		c.AbortWithStatus(statusClientClosedRequest)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Request timed out"})
		return
	}

	var se *service.Error
	if !errors.As(err, &se) {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("trace_id", util.TraceID(c.Request.Context())),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch se.Kind {
	case service.KindValidation:
		status = http.StatusBadRequest
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindForbidden:
		status = http.StatusForbidden
	case service.KindConflict:
		status = http.StatusConflict
	case service.KindUpstream:
		status = http.StatusBadGateway
		util.GetLogger().Error("Upstream call failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": se.Message})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
