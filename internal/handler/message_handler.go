package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"campus-market/internal/domain"
	"campus-market/internal/middleware"
	"campus-market/internal/observability"
	"campus-market/internal/service"
	ws "campus-market/internal/websocket"

	"github.com/samber/lo"
)

// MessageHandler serves conversation history, the inbox and presence.
type MessageHandler struct {
	chatService *service.ChatService
	registry    *ws.Registry
}

func NewMessageHandler(chatService *service.ChatService, registry *ws.Registry) *MessageHandler {
	return &MessageHandler{
		chatService: chatService,
		registry:    registry,
	}
}

// ConversationResponse is one inbox entry.
type ConversationResponse struct {
	OtherUserID int64              `json:"other_user_id"`
	LastMessage ws.OutboundMessage `json:"last_message"`
}

// PresenceResponse reports whether a user has a live connection here.
type PresenceResponse struct {
	UserID      int64 `json:"user_id"`
	Online      bool  `json:"online"`
	Connections int   `json:"connections"`
}

// History returns a page of the conversation between the caller and
// other_user_id in the same shape the socket delivers.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	otherID, ok := pathID(r, "other_user_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	q, ok := parseHistoryQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid query parameters")
		return
	}

	messages, err := h.chatService.History(r.Context(), userID, otherID, q)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		observability.FromContext(r.Context()).Error("Failed to load history",
			slog.Int64("other_user_id", otherID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(messages, func(m *domain.ChatMessage, _ int) ws.OutboundMessage {
		return ws.NewOutboundMessage(m)
	}))
}

// Conversations lists the caller's latest message per counterpart.
func (h *MessageHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	summaries, err := h.chatService.Conversations(r.Context(), userID)
	if err != nil {
		observability.FromContext(r.Context()).Error("Failed to load conversations",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to load conversations")
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(summaries, func(s *domain.ConversationSummary, _ int) ConversationResponse {
		return ConversationResponse{
			OtherUserID: s.OtherUserID,
			LastMessage: ws.NewOutboundMessage(s.LastMessage),
		}
	}))
}

// Presence reports the connection count of user_id on this instance.
func (h *MessageHandler) Presence(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "user_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	count := h.registry.ConnectionCount(userID)
	writeJSON(w, http.StatusOK, PresenceResponse{
		UserID:      userID,
		Online:      count > 0,
		Connections: count,
	})
}

func parseHistoryQuery(r *http.Request) (domain.HistoryQuery, bool) {
	var q domain.HistoryQuery

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return q, false
		}
		q.Limit = limit
	}

	before, ok := queryID(r, "before")
	if !ok {
		return q, false
	}
	q.BeforeID = before

	productID, ok := queryID(r, "product_id")
	if !ok {
		return q, false
	}
	if productID > 0 {
		q.ProductID = &productID
	}

	return q, true
}
