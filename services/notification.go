package services

import (
	"context"
	"strings"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/metrics"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"gorm.io/gorm"
)

// PushSender プッシュ通知の送信先。firebase.MessagingSender が満たす
type PushSender interface {
	SendToDevice(ctx context.Context, token, title, body string, data map[string]string) (string, error)
	SendToDevices(ctx context.Context, tokens []string, title, body string) (int, int, error)
	SendToTopic(ctx context.Context, topic, title, body string) (string, error)
}

// Notifier 通知フィードへの書き込み口。他のサービスはこれだけに依存する
type Notifier interface {
	Notify(ctx context.Context, n NotificationInput) error
}

type NotificationInput struct {
	UserID     string
	Type       string
	Title      string
	Content    string
	PostID     *string
	CategoryID *string
}

type NotificationService struct {
	db      *gorm.DB
	push    PushSender
	metrics *metrics.Collector
}

// NewNotificationService push が nil ならフィードのみ
func NewNotificationService(db *gorm.DB, push PushSender, m *metrics.Collector) *NotificationService {
	return &NotificationService{db: db, push: push, metrics: m}
}

// Notify フィードに保存し、FCM トークンがあればプッシュも送る
func (s *NotificationService) Notify(ctx context.Context, in NotificationInput) error {
	n := models.Notification{
		UserID:           in.UserID,
		PostID:           in.PostID,
		CategoryID:       in.CategoryID,
		NotificationType: in.Type,
		Title:            in.Title,
		Content:          in.Content,
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return internal("failed to save notification", err)
	}

	if s.push == nil {
		return nil
	}
	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "fcm_token").First(&user, "id = ?", in.UserID).Error; err != nil || user.FCMToken == "" {
		return nil
	}
	data := map[string]string{"type": in.Type, "notification_id": n.ID}
	if in.PostID != nil {
		data["post_id"] = *in.PostID
	}
	token := user.FCMToken
	runDetached("push notification", func(ctx context.Context) error {
		_, err := s.push.SendToDevice(ctx, token, in.Title, in.Content, data)
		s.metrics.PushResult(err == nil)
		return err
	})
	return nil
}

// NotifyInterestedUsers カテゴリを購読していてキーワードが一致するユーザーへ新着通知
func (s *NotificationService) NotifyInterestedUsers(ctx context.Context, post *models.Post) error {
	if post.CategoryID == nil {
		return nil
	}
	var interests []models.UserInterest
	err := s.db.WithContext(ctx).
		Where("category_id = ? AND is_active = ? AND user_id <> ?", *post.CategoryID, true, post.UserID).
		Find(&interests).Error
	if err != nil {
		return internal("failed to load interests", err)
	}

	text := strings.ToLower(post.Title + " " + post.Description)
	for _, in := range interests {
		if !matchesKeywords(text, in.Keywords) {
			continue
		}
		err := s.Notify(ctx, NotificationInput{
			UserID:     in.UserID,
			Type:       models.NotificationNewPostInInterest,
			Title:      "Có bài đăng mới bạn quan tâm",
			Content:    post.Title,
			PostID:     &post.ID,
			CategoryID: post.CategoryID,
		})
		logBestEffort("notify interested user", err)
	}
	return nil
}

func matchesKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, k := range keywords {
		if k != "" && strings.Contains(text, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// NotificationFeed 一覧と未読数
type NotificationFeed struct {
	Page[models.Notification]
	UnreadCount int64 `json:"unread_count"`
}

func (s *NotificationService) List(ctx context.Context, userID string, page, limit int) (*NotificationFeed, error) {
	page, limit = normalizePage(page, limit)
	db := s.db.WithContext(ctx)

	var total, unread int64
	if err := db.Model(&models.Notification{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, internal("failed to count notifications", err)
	}
	if err := db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", userID, false).Count(&unread).Error; err != nil {
		return nil, internal("failed to count unread notifications", err)
	}
	var items []models.Notification
	err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset(page, limit)).
		Find(&items).Error
	if err != nil {
		return nil, internal("failed to list notifications", err)
	}
	return &NotificationFeed{Page: newPage(items, total, page, limit), UnreadCount: unread}, nil
}

func (s *NotificationService) ownNotification(ctx context.Context, userID, id string) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound("Notification not found")
		}
		return nil, internal("failed to load notification", err)
	}
	if n.UserID != userID {
		return nil, apperrors.Forbidden("You do not own this notification")
	}
	return &n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) (*models.Notification, error) {
	n, err := s.ownNotification(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(n).Update("is_read", true).Error; err != nil {
		return nil, internal("failed to mark notification read", err)
	}
	n.IsRead = true
	return n, nil
}

// MarkAllRead 更新件数を返す
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, internal("failed to mark notifications read", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	n, err := s.ownNotification(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(n).Error; err != nil {
		return internal("failed to delete notification", err)
	}
	return nil
}

// TestSendResult test-send の結果。失敗も HTTP エラーにはしない
type TestSendResult struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *NotificationService) TestSend(ctx context.Context, token, title, body string) TestSendResult {
	if title == "" {
		title = "Test notification"
	}
	if body == "" {
		body = "This is a test notification"
	}
	if s.push == nil {
		return TestSendResult{Status: "error", Message: "Failed to send notification", Error: "push is not configured"}
	}
	id, err := s.push.SendToDevice(ctx, token, title, body, nil)
	s.metrics.PushResult(err == nil)
	if err != nil {
		return TestSendResult{Status: "error", Message: "Failed to send notification", Error: err.Error()}
	}
	return TestSendResult{Status: "success", Message: "Notification sent successfully", Response: id}
}

// Broadcast トピック購読者への一斉送信
func (s *NotificationService) Broadcast(ctx context.Context, topic, title, body string) (string, error) {
	if s.push == nil {
		return "", apperrors.Internal("push is not configured", nil)
	}
	id, err := s.push.SendToTopic(ctx, topic, title, body)
	s.metrics.PushResult(err == nil)
	if err != nil {
		return "", internal("failed to send topic notification", err)
	}
	return id, nil
}

// PushToUsers 複数ユーザーの端末へプッシュのみ送る (フィードには残さない)
func (s *NotificationService) PushToUsers(ctx context.Context, userIDs []string, title, body string) (int, int, error) {
	if s.push == nil || len(userIDs) == 0 {
		return 0, 0, nil
	}
	var tokens []string
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN ? AND fcm_token <> ''", userIDs).
		Pluck("fcm_token", &tokens).Error
	if err != nil {
		return 0, 0, internal("failed to load device tokens", err)
	}
	ok, failed, err := s.push.SendToDevices(ctx, tokens, title, body)
	for i := 0; i < ok; i++ {
		s.metrics.PushResult(true)
	}
	for i := 0; i < failed; i++ {
		s.metrics.PushResult(false)
	}
	if err != nil {
		return ok, failed, internal("failed to send notifications", err)
	}
	return ok, failed, nil
}
