package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPush struct {
	mock.Mock
}

func (m *mockPush) SendToDevice(ctx context.Context, token, title, body string, data map[string]string) (string, error) {
	args := m.Called(token, title, body, data)
	return args.String(0), args.Error(1)
}

func (m *mockPush) SendToDevices(ctx context.Context, tokens []string, title, body string) (int, int, error) {
	args := m.Called(tokens, title, body)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *mockPush) SendToTopic(ctx context.Context, topic, title, body string) (string, error) {
	args := m.Called(topic, title, body)
	return args.String(0), args.Error(1)
}

func TestNotify_SavesFeedAndPushes(t *testing.T) {
	db := newTestDB(t)
	push := &mockPush{}
	svc := NewNotificationService(db, push, nil)
	ctx := context.Background()
	u := createUser(t, db, "an")
	require.NoError(t, NewUserService(db).SetFCMToken(ctx, u.ID, "device-token"))

	sent := make(chan map[string]string, 1)
	push.On("SendToDevice", "device-token", "Xin chào", "Nội dung", mock.Anything).
		Run(func(args mock.Arguments) { sent <- args.Get(3).(map[string]string) }).
		Return("msg-1", nil)

	err := svc.Notify(ctx, NotificationInput{UserID: u.ID, Type: models.NotificationSystem, Title: "Xin chào", Content: "Nội dung"})
	require.NoError(t, err)

	feed, err := svc.List(ctx, u.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, int64(1), feed.UnreadCount)
	select {
	case data := <-sent:
		assert.Equal(t, models.NotificationSystem, data["type"])
		assert.Equal(t, feed.Items[0].ID, data["notification_id"])
	case <-time.After(time.Second):
		t.Fatal("push was not sent")
	}
}

func TestNotify_WithoutTokenSkipsPush(t *testing.T) {
	db := newTestDB(t)
	push := &mockPush{}
	svc := NewNotificationService(db, push, nil)
	u := createUser(t, db, "an")

	require.NoError(t, svc.Notify(context.Background(), NotificationInput{UserID: u.ID, Type: models.NotificationSystem, Title: "t", Content: "c"}))
	push.AssertNotCalled(t, "SendToDevice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNotifyInterestedUsers_MatchesKeywords(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotificationService(db, nil, nil)
	interests := NewInterestService(db)
	ctx := context.Background()
	seller := createUser(t, db, "seller")
	wantsAll := createUser(t, db, "all")
	wantsCalc := createUser(t, db, "calc")
	wantsOther := createUser(t, db, "other")
	cat := firstCategory(t, db)

	_, err := interests.Sync(ctx, wantsAll.ID, []InterestInput{{CategoryID: cat.ID}})
	require.NoError(t, err)
	_, err = interests.Sync(ctx, wantsCalc.ID, []InterestInput{{CategoryID: cat.ID, Keywords: []string{"Giải tích"}}})
	require.NoError(t, err)
	_, err = interests.Sync(ctx, wantsOther.ID, []InterestInput{{CategoryID: cat.ID, Keywords: []string{"hóa học"}}})
	require.NoError(t, err)
	_, err = interests.Sync(ctx, seller.ID, []InterestInput{{CategoryID: cat.ID}})
	require.NoError(t, err)

	post := createPost(t, db, seller, "Giáo trình Giải tích 1", models.TransactionSell, price(45000))
	require.NoError(t, svc.NotifyInterestedUsers(ctx, post))

	var got []models.Notification
	require.NoError(t, db.Where("notification_type = ?", models.NotificationNewPostInInterest).Find(&got).Error)
	recipients := map[string]bool{}
	for _, n := range got {
		recipients[n.UserID] = true
	}
	assert.Equal(t, map[string]bool{wantsAll.ID: true, wantsCalc.ID: true}, recipients)
}

func TestNotificationFeed_Ownership(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotificationService(db, nil, nil)
	ctx := context.Background()
	a := createUser(t, db, "an")
	b := createUser(t, db, "binh")
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Notify(ctx, NotificationInput{UserID: a.ID, Type: models.NotificationSystem, Title: "t", Content: "c"}))
	}
	feed, err := svc.List(ctx, a.ID, 1, 20)
	require.NoError(t, err)
	first := feed.Items[0]

	_, err = svc.MarkRead(ctx, b.ID, first.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	_, err = svc.MarkRead(ctx, a.ID, "88888888-8888-8888-8888-888888888888")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	n, err := svc.MarkRead(ctx, a.ID, first.ID)
	require.NoError(t, err)
	assert.True(t, n.IsRead)

	updated, err := svc.MarkAllRead(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	assert.True(t, apperrors.Is(svc.Delete(ctx, b.ID, first.ID), apperrors.CodeForbidden))
	require.NoError(t, svc.Delete(ctx, a.ID, first.ID))

	feed, err = svc.List(ctx, a.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), feed.Total)
	assert.Zero(t, feed.UnreadCount)
}

func TestTestSend_NeverFails(t *testing.T) {
	db := newTestDB(t)
	push := &mockPush{}
	svc := NewNotificationService(db, push, nil)
	ctx := context.Background()

	push.On("SendToDevice", "good", "Test notification", "This is a test notification", mock.Anything).Return("projects/x/messages/1", nil)
	push.On("SendToDevice", "bad", "Hi", "Body", mock.Anything).Return("", errors.New("registration-token-not-registered"))

	ok := svc.TestSend(ctx, "good", "", "")
	assert.Equal(t, "success", ok.Status)
	assert.Equal(t, "projects/x/messages/1", ok.Response)

	failed := svc.TestSend(ctx, "bad", "Hi", "Body")
	assert.Equal(t, "error", failed.Status)
	assert.Contains(t, failed.Error, "registration-token-not-registered")

	noPush := NewNotificationService(db, nil, nil).TestSend(ctx, "good", "", "")
	assert.Equal(t, "error", noPush.Status)
}

func TestPushToUsersAndBroadcast(t *testing.T) {
	db := newTestDB(t)
	push := &mockPush{}
	svc := NewNotificationService(db, push, nil)
	ctx := context.Background()
	users := NewUserService(db)
	a := createUser(t, db, "an")
	b := createUser(t, db, "binh")
	require.NoError(t, users.SetFCMToken(ctx, a.ID, "tok-a"))

	push.On("SendToDevices", []string{"tok-a"}, "title", "body").Return(1, 0, nil)
	push.On("SendToTopic", "all-students", "title", "body").Return("topic-msg", nil)

	ok, failed, err := svc.PushToUsers(ctx, []string{a.ID, b.ID}, "title", "body")
	require.NoError(t, err)
	assert.Equal(t, 1, ok)
	assert.Zero(t, failed)

	id, err := svc.Broadcast(ctx, "all-students", "title", "body")
	require.NoError(t, err)
	assert.Equal(t, "topic-msg", id)
	push.AssertExpectations(t)
}
