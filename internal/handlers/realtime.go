package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/fusen-app/fusen/internal/auth"
	"github.com/fusen-app/fusen/internal/realtime"
	"github.com/fusen-app/fusen/pkg/errors"
	"github.com/fusen-app/fusen/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into authenticated WebSocket sessions.
type RealtimeHandler struct {
	hub *realtime.Hub
	jwt *iauth.JWTService
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, jwt: jwt}
}

// Serve validates the caller out-of-band and hands the connection to the
// hub. The token travels in the Authorization header or, for browser
// clients that cannot set headers on websocket dials, a
// "bearer.<token>" entry in Sec-WebSocket-Protocol. Query strings are
// never consulted so tokens stay out of access logs.
func (h *RealtimeHandler) Serve(c *gin.Context) {
	if h.jwt == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := bearerFromRequest(c)
	if token == "" {
		response.Error(c, errors.ErrUnauthenticated)
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthenticated)
		return
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		response.Error(c, errors.ErrUnauthenticated)
		return
	}

	h.hub.Serve(userID, c.Writer, c.Request)
}

func bearerFromRequest(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}

	for _, field := range c.Request.Header.Values("Sec-WebSocket-Protocol") {
		for _, proto := range strings.Split(field, ",") {
			proto = strings.TrimSpace(proto)
			if strings.HasPrefix(proto, "bearer.") {
				return strings.TrimPrefix(proto, "bearer.")
			}
		}
	}

	return ""
}
