package handler

import (
	"context"
	"log/slog"
	"net/http"

	"campus-market/internal/middleware"
	ws "campus-market/internal/websocket"

	"github.com/gorilla/websocket"
)

// WebSocketHandler binds an upgraded connection to the user id in its URL.
type WebSocketHandler struct {
	ctx      context.Context
	registry *ws.Registry
	messages ws.MessageSender
	tokens   middleware.TokenParser
	upgrader websocket.Upgrader

	// trustHandshake accepts the URL user id without a token. Development only.
	trustHandshake bool
}

// NewWebSocketHandler creates the /ws/{user_id} handler. Sessions live
// until ctx is done, independent of the upgrade request.
func NewWebSocketHandler(ctx context.Context, registry *ws.Registry, messages ws.MessageSender,
	tokens middleware.TokenParser, allowedOrigins []string, trustHandshake bool) *WebSocketHandler {
	return &WebSocketHandler{
		ctx:      ctx,
		registry: registry,
		messages: messages,
		tokens:   tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// non-browser clients send no Origin
				return origin == "" || middleware.OriginAllowed(origin, allowedOrigins)
			},
		},
		trustHandshake: trustHandshake,
	}
}

// HandleConnection resolves and authorizes the user id, upgrades the
// connection and starts the session.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "user_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	if !h.trustHandshake {
		token := middleware.TokenFromRequest(r, true)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		tokenUserID, err := h.tokens.Parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if tokenUserID != userID {
			writeError(w, http.StatusForbidden, "Token does not match user")
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		slog.Warn("WebSocket upgrade failed",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(h.ctx, h.registry, conn, userID, h.messages, !h.trustHandshake)
	client.Start()

	slog.Info("WebSocket session opened",
		slog.Int64("user_id", userID),
		slog.String("conn_id", client.ConnID()))
}
