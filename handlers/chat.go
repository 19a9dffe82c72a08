package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type CreateConversationRequest struct {
	RecipientID string  `json:"recipient_id" binding:"required"`
	PostID      *string `json:"post_id"`
}

// CreateConversationHandler 既存の会話があればそれを返す (200)、なければ作成 (201)
func (h *Handler) CreateConversationHandler(c *gin.Context) {
	var req CreateConversationRequest
	if !bindJSON(c, &req) {
		return
	}
	conv, created, err := h.Chat.FindOrCreateConversation(c.Request.Context(), currentUserID(c), req.RecipientID, req.PostID)
	if err != nil {
		respondError(c, err)
		return
	}
	if created {
		respond(c, http.StatusCreated, "Conversation created", conv)
		return
	}
	respond(c, http.StatusOK, "Conversation retrieved", conv)
}

func (h *Handler) GetConversationsHandler(c *gin.Context) {
	summaries, err := h.Chat.GetConversations(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Conversations retrieved", summaries)
}

type SendMessageRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Content        string `json:"content" binding:"required"`
	MessageType    string `json:"message_type" binding:"omitempty,message_type"`
}

// PostMessageHandler メッセージをDB保存し、WSで送信
func (h *Handler) PostMessageHandler(c *gin.Context) {
	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.Chat.CreateMessage(c.Request.Context(), currentUserID(c), req.ConversationID, req.Content, req.MessageType)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Metrics.MessageCreated("rest")
	if h.Gateway != nil {
		h.Gateway.DeliverMessage(msg)
	}
	respond(c, http.StatusCreated, "Message sent", msg)
}

func (h *Handler) GetMessagesHandler(c *gin.Context) {
	page, limit := pageParams(c)
	result, err := h.Chat.GetMessages(c.Request.Context(), currentUserID(c), c.Param("id"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Messages retrieved", result)
}

func (h *Handler) MarkConversationReadHandler(c *gin.Context) {
	conv, readAt, err := h.Chat.MarkConversationAsRead(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Conversation marked as read", gin.H{
		"conversation_id": conv.ID,
		"read_at":         readAt,
	})
}

type CompleteTransactionRequest struct {
	FinalPrice *int64 `json:"final_price" binding:"omitempty,min=0"`
	Notes      string `json:"notes" binding:"max=1000"`
}

// CompleteTransactionHandler 取引完了で会話をロックする
func (h *Handler) CompleteTransactionHandler(c *gin.Context) {
	var req CompleteTransactionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	result, err := h.Chat.CompleteTransaction(c.Request.Context(), c.Param("id"), currentUserID(c), req.FinalPrice, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Transaction completed", result)
}
