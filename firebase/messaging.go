package firebase

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
)

// FCMClient は messaging.Client のうち送信で使うメソッド
type FCMClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// MessagingSender FCM 経由でプッシュ通知を送る
type MessagingSender struct {
	client FCMClient
}

func NewMessagingSender(client FCMClient) *MessagingSender {
	return &MessagingSender{client: client}
}

// SendToDevice 単一デバイスへ送信し、FCM のメッセージIDを返す
func (s *MessagingSender) SendToDevice(ctx context.Context, token, title, body string, data map[string]string) (string, error) {
	if data == nil {
		data = map[string]string{}
	}
	msg := &messaging.Message{
		Token:        token,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{Sound: "default"},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
		},
	}

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("failed to send notification: %w", err)
	}
	slog.Debug("push sent", slog.String("message_id", id))
	return id, nil
}

// SendToDevices 複数デバイスへ送信し、成功数と失敗数を返す
func (s *MessagingSender) SendToDevices(ctx context.Context, tokens []string, title, body string) (int, int, error) {
	if len(tokens) == 0 {
		return 0, 0, nil
	}
	resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: &messaging.Notification{Title: title, Body: body},
	})
	if err != nil {
		return 0, len(tokens), fmt.Errorf("failed to send multicast notification: %w", err)
	}
	return resp.SuccessCount, resp.FailureCount, nil
}

func (s *MessagingSender) SendToTopic(ctx context.Context, topic, title, body string) (string, error) {
	id, err := s.client.Send(ctx, &messaging.Message{
		Topic:        topic,
		Notification: &messaging.Notification{Title: title, Body: body},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send topic notification: %w", err)
	}
	return id, nil
}
