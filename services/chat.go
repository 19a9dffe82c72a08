package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/database"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"gorm.io/gorm"
)

type ChatService struct {
	db            *gorm.DB
	notifier      Notifier
	enforceBlocks bool
}

// NewChatService notifier は nil 可
func NewChatService(db *gorm.DB, notifier Notifier, enforceBlocks bool) *ChatService {
	return &ChatService{db: db, notifier: notifier, enforceBlocks: enforceBlocks}
}

// canonicalPair 文字列順で小さい方を initiator にする
func canonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func contextKey(postID *string) string {
	if postID == nil {
		return ""
	}
	return *postID
}

// FindOrCreateConversation 同じ組み合わせ (と投稿) の会話があればそれを返す
func (s *ChatService) FindOrCreateConversation(ctx context.Context, currentUserID, recipientID string, postID *string) (*models.Conversation, bool, error) {
	if currentUserID == recipientID {
		return nil, false, apperrors.Conflict("You cannot start a conversation with yourself")
	}
	postID = emptyToNil(postID)
	initiator, recipient := canonicalPair(currentUserID, recipientID)
	key := contextKey(postID)
	db := s.db.WithContext(ctx)

	existing, err := s.findPair(db, initiator, recipient, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if err := db.Select("id").First(&models.User{}, "id = ?", recipientID).Error; err != nil {
		if isNotFound(err) {
			return nil, false, apperrors.NotFound("Recipient not found")
		}
		return nil, false, internal("failed to load recipient", err)
	}
	if postID != nil {
		if err := db.Select("id").First(&models.Post{}, "id = ?", *postID).Error; err != nil {
			if isNotFound(err) {
				return nil, false, apperrors.NotFound("Post not found")
			}
			return nil, false, internal("failed to load post", err)
		}
	}

	conv := &models.Conversation{
		InitiatorID:   initiator,
		RecipientID:   recipient,
		ContextKey:    key,
		PostID:        postID,
		LastMessageAt: now(),
	}
	if err := db.Create(conv).Error; err != nil {
		if database.IsUniqueViolation(err) {
			// 💡 同時作成で負けた側は勝った行を返す
			winner, ferr := s.findPair(db, initiator, recipient, key)
			if ferr != nil {
				return nil, false, ferr
			}
			if winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, internal("failed to create conversation", err)
	}
	return conv, true, nil
}

// nextSentAt ミリ秒精度でも直前のメッセージと相手の既読時刻より後になるようにする
func nextSentAt(conv *models.Conversation, partnerID string) time.Time {
	floor := conv.LastMessageAt
	if lr := conv.LastReadOf(partnerID); lr != nil && lr.After(floor) {
		floor = *lr
	}
	sentAt := now()
	if !sentAt.After(floor) {
		sentAt = floor.Add(time.Millisecond)
	}
	return sentAt
}

func (s *ChatService) findPair(db *gorm.DB, initiator, recipient, key string) (*models.Conversation, error) {
	var conv models.Conversation
	err := db.Where("initiator_id = ? AND recipient_id = ? AND context_key = ?", initiator, recipient, key).First(&conv).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, internal("failed to look up conversation", err)
	}
	return &conv, nil
}

// participantConversation 存在しなければ 404、当事者でなければ 409
func (s *ChatService) participantConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", conversationID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound("Conversation not found")
		}
		return nil, internal("failed to load conversation", err)
	}
	if !conv.IsParticipant(userID) {
		return nil, apperrors.Conflict("You are not a participant of this conversation")
	}
	return &conv, nil
}

// GetConversation 当事者のみ取得できる
func (s *ChatService) GetConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	return s.participantConversation(ctx, userID, conversationID)
}

// CreateMessage 返り値の Conversation には保存前の会話が入る
func (s *ChatService) CreateMessage(ctx context.Context, senderID, conversationID, content, messageType string) (*models.Message, error) {
	conv, err := s.participantConversation(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.IsLocked {
		return nil, apperrors.Forbidden("Conversation is locked")
	}
	partnerID := conv.PartnerID(senderID)
	if s.enforceBlocks {
		blocked, err := eitherBlocked(s.db.WithContext(ctx), senderID, partnerID)
		if err != nil {
			return nil, internal("failed to check blocks", err)
		}
		if blocked {
			return nil, apperrors.Forbidden("You cannot message this user")
		}
	}

	content = sanitizeText(content)
	if content == "" {
		return nil, apperrors.Validation("content must not be empty")
	}
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	if !models.ValidMessageType(messageType) {
		return nil, apperrors.Validation("message_type must be one of text, image, file")
	}

	sentAt := nextSentAt(conv, partnerID)
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       &senderID,
		Content:        content,
		MessageType:    messageType,
		SentAt:         sentAt,
	}
	lastReadColumn := lastReadColumnFor(conv, senderID)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(map[string]interface{}{
			"last_message_at": sentAt,
			lastReadColumn:    sentAt,
		}).Error
	})
	if err != nil {
		return nil, internal("failed to save message", err)
	}

	var sender models.User
	if err := s.db.WithContext(ctx).First(&sender, "id = ?", senderID).Error; err == nil {
		msg.Sender = &sender
	}
	msg.Conversation = conv

	if s.notifier != nil {
		title := "Tin nhắn mới"
		if msg.Sender != nil {
			title = "Tin nhắn mới từ " + msg.Sender.FullName
		}
		logBestEffort("notify new message", s.notifier.Notify(ctx, NotificationInput{
			UserID:  partnerID,
			Type:    models.NotificationNewMessage,
			Title:   title,
			Content: preview(messageType, content),
			PostID:  conv.PostID,
		}))
	}
	return msg, nil
}

func preview(messageType, content string) string {
	switch messageType {
	case models.MessageTypeImage:
		return "[Hình ảnh]"
	case models.MessageTypeFile:
		return "[Tệp đính kèm]"
	}
	const max = 100
	if r := []rune(content); len(r) > max {
		return string(r[:max]) + "…"
	}
	return content
}

func lastReadColumnFor(conv *models.Conversation, userID string) string {
	if conv.InitiatorID == userID {
		return "initiator_last_read"
	}
	return "recipient_last_read"
}

// CountUnreadMessages 相手が送ったメッセージのうち viewer の既読時刻より後のもの
func (s *ChatService) CountUnreadMessages(ctx context.Context, conv *models.Conversation, viewerID string) (int64, error) {
	partnerID := conv.PartnerID(viewerID)
	lastRead := conv.LastReadOf(viewerID)
	if lastRead != nil && !conv.LastMessageAt.After(*lastRead) {
		return 0, nil
	}
	q := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id = ?", conv.ID, partnerID)
	if lastRead != nil {
		q = q.Where("sent_at > ?", *lastRead)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, internal("failed to count unread messages", err)
	}
	return count, nil
}

// MarkConversationAsRead viewer 側の既読時刻だけを更新する
func (s *ChatService) MarkConversationAsRead(ctx context.Context, viewerID, conversationID string) (*models.Conversation, time.Time, error) {
	if !validID(conversationID) {
		return nil, time.Time{}, apperrors.Validation("Invalid conversation id")
	}
	conv, err := s.participantConversation(ctx, viewerID, conversationID)
	if err != nil {
		return nil, time.Time{}, err
	}
	readAt := now()
	// 同じミリ秒内の最新メッセージも既読に含める
	if conv.LastMessageAt.After(readAt) {
		readAt = conv.LastMessageAt
	}
	column := lastReadColumnFor(conv, viewerID)
	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", conv.ID).Update(column, readAt).Error; err != nil {
		return nil, time.Time{}, internal("failed to mark conversation read", err)
	}
	if column == "initiator_last_read" {
		conv.InitiatorLastRead = &readAt
	} else {
		conv.RecipientLastRead = &readAt
	}
	return conv, readAt, nil
}

type Partner struct {
	UserID    string `json:"user_id"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

type ConversationSummary struct {
	ConversationID string          `json:"conversation_id"`
	PostID         *string         `json:"post_id"`
	Partner        Partner         `json:"partner"`
	LastMessage    *models.Message `json:"last_message"`
	LastMessageAt  time.Time       `json:"last_message_at"`
	UnreadCount    int64           `json:"unread_count"`
	IsLocked       bool            `json:"is_locked"`
}

// GetConversations 最終メッセージの新しい順
func (s *ChatService) GetConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Initiator").Preload("Recipient").
		Where("initiator_id = ? OR recipient_id = ?", userID, userID).
		Order("last_message_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, internal("failed to list conversations", err)
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for i := range convs {
		conv := &convs[i]
		unread, err := s.CountUnreadMessages(ctx, conv, userID)
		if err != nil {
			return nil, err
		}
		var last *models.Message
		var m models.Message
		err = s.db.WithContext(ctx).Where("conversation_id = ?", conv.ID).Order("sent_at DESC").Limit(1).Find(&m).Error
		if err != nil {
			return nil, internal("failed to load last message", err)
		}
		if m.ID != "" {
			last = &m
		}

		partner := conv.Recipient
		if conv.RecipientID == userID {
			partner = conv.Initiator
		}
		summary := ConversationSummary{
			ConversationID: conv.ID,
			PostID:         conv.PostID,
			LastMessage:    last,
			LastMessageAt:  conv.LastMessageAt,
			UnreadCount:    unread,
			IsLocked:       conv.IsLocked,
		}
		if partner != nil {
			summary.Partner = Partner{UserID: partner.ID, FullName: partner.FullName, AvatarURL: partner.AvatarURL}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetMessages 新しい順のページ
func (s *ChatService) GetMessages(ctx context.Context, viewerID, conversationID string, page, limit int) (*Page[models.Message], error) {
	if _, err := s.participantConversation(ctx, viewerID, conversationID); err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit)
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.Message{}).Where("conversation_id = ?", conversationID).Count(&total).Error; err != nil {
		return nil, internal("failed to count messages", err)
	}
	var messages []models.Message
	err := db.Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Order("sent_at DESC").
		Limit(limit).Offset(offset(page, limit)).
		Find(&messages).Error
	if err != nil {
		return nil, internal("failed to list messages", err)
	}
	result := newPage(messages, total, page, limit)
	return &result, nil
}

type CompletionResult struct {
	ConversationID string          `json:"conversation_id"`
	Status         string          `json:"status"`
	CompletedAt    time.Time       `json:"completed_at"`
	FinalPrice     *int64          `json:"final_price"`
	Message        *models.Message `json:"message"`
}

// CompleteTransaction 会話をロックしてシステムメッセージを残す。ロックは解除できない
func (s *ChatService) CompleteTransaction(ctx context.Context, conversationID, userID string, finalPrice *int64, notes string) (*CompletionResult, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", conversationID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound("Conversation not found")
		}
		return nil, internal("failed to load conversation", err)
	}
	if !conv.IsParticipant(userID) {
		return nil, apperrors.Forbidden("You are not a participant of this conversation")
	}
	if conv.IsLocked {
		return nil, apperrors.Conflict("Transaction already completed")
	}
	if finalPrice != nil && *finalPrice < 0 {
		return nil, apperrors.Validation("final_price must not be negative")
	}
	notes = sanitizeText(notes)

	completedAt := now()
	if !completedAt.After(conv.LastMessageAt) {
		completedAt = conv.LastMessageAt.Add(time.Millisecond)
	}
	msg := &models.Message{
		ConversationID: conv.ID,
		Content:        completionText(finalPrice, notes),
		MessageType:    models.MessageTypeText,
		SentAt:         completedAt,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 並行リクエストで二重にロックしない
		res := tx.Model(&models.Conversation{}).
			Where("id = ? AND is_locked = ?", conv.ID, false).
			Updates(map[string]interface{}{
				"is_locked":        true,
				"completed_at":     completedAt,
				"final_price":      finalPrice,
				"completion_notes": notes,
				"last_message_at":  completedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict("Transaction already completed")
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		if conv.PostID != nil {
			return tx.Model(&models.Post{}).Where("id = ?", *conv.PostID).Update("is_available", false).Error
		}
		return nil
	})
	if err != nil {
		if apperrors.Is(err, apperrors.CodeConflict) {
			return nil, err
		}
		return nil, internal("failed to complete transaction", err)
	}

	if s.notifier != nil {
		logBestEffort("notify transaction completed", s.notifier.Notify(ctx, NotificationInput{
			UserID:  conv.PartnerID(userID),
			Type:    models.NotificationTransactionCompleted,
			Title:   "Giao dịch đã hoàn tất",
			Content: msg.Content,
			PostID:  conv.PostID,
		}))
	}
	return &CompletionResult{
		ConversationID: conv.ID,
		Status:         "completed",
		CompletedAt:    completedAt,
		FinalPrice:     finalPrice,
		Message:        msg,
	}, nil
}

func completionText(finalPrice *int64, notes string) string {
	var b strings.Builder
	b.WriteString("Giao dịch đã hoàn tất")
	if finalPrice != nil {
		fmt.Fprintf(&b, " với giá %d VND", *finalPrice)
	}
	b.WriteString(".")
	if notes != "" {
		b.WriteString(" Ghi chú: ")
		b.WriteString(notes)
	}
	return b.String()
}
