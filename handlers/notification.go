package handlers

import (
	"fmt"
	"net/http"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/services"
	"github.com/gin-gonic/gin"
)

func (h *Handler) GetNotificationsHandler(c *gin.Context) {
	page, limit := pageParams(c)
	feed, err := h.Notifications.List(c.Request.Context(), currentUserID(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Notifications retrieved", feed)
}

func (h *Handler) MarkNotificationReadHandler(c *gin.Context) {
	n, err := h.Notifications.MarkRead(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Notification marked as read", n)
}

func (h *Handler) MarkAllNotificationsReadHandler(c *gin.Context) {
	count, err := h.Notifications.MarkAllRead(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "All notifications marked as read", gin.H{"updated": count})
}

func (h *Handler) DeleteNotificationHandler(c *gin.Context) {
	if err := h.Notifications.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Notification deleted", nil)
}

// TestNotificationRequest token / topic / user_ids のどれか1つ
type TestNotificationRequest struct {
	Token   string   `json:"token"`
	Topic   string   `json:"topic"`
	UserIDs []string `json:"user_ids"`
	Title   string   `json:"title"`
	Body    string   `json:"body"`
}

// TestSendHandler 送信失敗は 200 のまま status:"error" で返す。宛先がなければ 400
func (h *Handler) TestSendHandler(c *gin.Context) {
	var req TestNotificationRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	var result services.TestSendResult
	switch {
	case req.Token != "":
		result = h.Notifications.TestSend(ctx, req.Token, req.Title, req.Body)
	case req.Topic != "":
		id, err := h.Notifications.Broadcast(ctx, req.Topic, orDefault(req.Title, "Test notification"), orDefault(req.Body, "This is a test notification"))
		result = sendResult(id, err)
	case len(req.UserIDs) > 0:
		ok, failed, err := h.Notifications.PushToUsers(ctx, req.UserIDs, orDefault(req.Title, "Test notification"), orDefault(req.Body, "This is a test notification"))
		result = sendResult(fmt.Sprintf("sent %d, failed %d", ok, failed), err)
	default:
		respondError(c, apperrors.Validation("token is required"))
		return
	}
	c.JSON(http.StatusOK, result)
}

func sendResult(response string, err error) services.TestSendResult {
	if err != nil {
		return services.TestSendResult{Status: "error", Message: "Failed to send notification", Error: apperrors.PublicMessage(err)}
	}
	return services.TestSendResult{Status: "success", Message: "Notification sent successfully", Response: response}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
