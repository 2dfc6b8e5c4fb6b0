package realtime

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chatrelay/internal/observability"
)

// TokenVerifier checks a realtime credential and returns the bound user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Handler upgrades HTTP requests into broker connections.
type Handler struct {
	broker   *Broker
	tokens   TokenVerifier
	upgrader websocket.Upgrader
}

// NewHandler constructs a Handler. allowedOrigin of "*" accepts any origin.
func NewHandler(broker *Broker, tokens TokenVerifier, allowedOrigin string) *Handler {
	return &Handler{
		broker: broker,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// Handle validates the scoped credential, upgrades the connection and
// registers it with the broker. Presence enter/leave is announced by the
// broker on register/unregister.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chatrelay/realtime").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	userID, err := h.tokens.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	meta := observability.MetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.ClientIP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	conn := newConn(h.broker, ws, info)
	h.broker.register(conn)

	go conn.writePump()
	go conn.readPump()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && header[:len(prefix)] == prefix {
			return header[len(prefix):]
		}
		return ""
	}
	return c.Query("token")
}
