package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"course-service/internal/auth"
	"course-service/internal/chat"
	"course-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// chatHistory returns a room's messages oldest first. limit and before
// (RFC 3339) page backwards through older messages.
func (h *Handler) chatHistory(c *gin.Context) {
	var q service.HistoryQuery
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		q.Limit = n
	}
	if raw := c.Query("before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid before timestamp"})
			return
		}
		q.Before = before
	}

	messages, err := h.chatService.History(c.Request.Context(), c.Param("courseId"), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// serveWebsocket upgrades the request and serves chat frames until the
// connection closes
func (h *Handler) serveWebsocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := chat.NewClient(h.hub, conn, auth.UserID(c))
	h.logger.Debug("Websocket connected",
		zap.Uint64("client_id", client.ID()),
		zap.String("user_id", client.UserID()))
	client.Serve(c.Request.Context(), h.chatService)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
