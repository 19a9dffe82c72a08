package gateway

import (
	"encoding/json"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/models"
)

// クライアント -> サーバー
const (
	EventSendMessage = "send_message"
	EventMarkRead    = "mark_read"
)

// サーバー -> クライアント
const (
	EventUserStatus       = "user_status"
	EventMessageSent      = "message_sent"
	EventNewMessage       = "new_message"
	EventConversationRead = "conversation_read"
	EventReadSyncSuccess  = "read_sync_success"
	EventErrorMessage     = "error_message"
	EventErrorRead        = "error_read"
	EventError            = "error"
)

// inbound 受信フレーム {"event": ..., "data": {...}}
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

type sendMessageData struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType"`
}

type markReadData struct {
	ConversationID string `json:"conversationId"`
}

type UserStatus struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"is_online"`
}

type SenderInfo struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// MessagePayload message_sent / new_message の data
type MessagePayload struct {
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	MessageType    string     `json:"message_type"`
	SentAt         time.Time  `json:"sent_at"`
	Sender         SenderInfo `json:"sender"`
}

func newMessagePayload(msg *models.Message) MessagePayload {
	p := MessagePayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		MessageType:    msg.MessageType,
		SentAt:         msg.SentAt,
	}
	if msg.SenderID != nil {
		p.SenderID = *msg.SenderID
		p.Sender.UserID = *msg.SenderID
	}
	if msg.Sender != nil {
		p.Sender.Username = msg.Sender.FullName
	}
	return p
}

type ConversationRead struct {
	ConversationID string    `json:"conversationId"`
	ReaderID       string    `json:"readerId"`
	ReadAt         time.Time `json:"readAt"`
}

type readSync struct {
	ConversationID string `json:"conversationId"`
}

// conversationError error_message / error_read の data
type conversationError struct {
	ConversationID string `json:"conversationId"`
	Error          string `json:"error"`
}

type errorData struct {
	Error string `json:"error"`
}
