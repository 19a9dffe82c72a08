package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Kousuke-irie/campus-market-backend/database/dbtest"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return dbtest.NewSeeded(t)
}

func createUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{
		FirebaseUID: "uid-" + name,
		Email:       fmt.Sprintf("%s@student.edu.vn", name),
		FullName:    name,
		IsActive:    true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func firstCategory(t *testing.T, db *gorm.DB) *models.Category {
	t.Helper()
	var c models.Category
	require.NoError(t, db.Where("category_name = ?", "Sách & Tài liệu học tập").First(&c).Error)
	return &c
}

func price(v int64) *int64 { return &v }

func strPtr(s string) *string { return &s }

func createPost(t *testing.T, db *gorm.DB, owner *models.User, title string, txType string, p *int64) *models.Post {
	t.Helper()
	cat := firstCategory(t, db)
	post, err := NewPostService(db, nil).Create(context.Background(), owner.ID, PostInput{
		CategoryID:      &cat.ID,
		Title:           title,
		Description:     "Còn mới 90%",
		Price:           p,
		Location:        "KTX khu A",
		TransactionType: txType,
	})
	require.NoError(t, err)
	return post
}

// recordingNotifier 呼ばれた通知を記録する
type recordingNotifier struct {
	mu    sync.Mutex
	calls []NotificationInput
}

func (n *recordingNotifier) Notify(ctx context.Context, in NotificationInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, in)
	return nil
}

func (n *recordingNotifier) byType(typ string) []NotificationInput {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []NotificationInput
	for _, c := range n.calls {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

// insertBeforeCreate table への次の INSERT の直前に、別接続扱いで insert を1度だけ実行する。
// 同時リクエストに先を越された状況を作る
func insertBeforeCreate(t *testing.T, db *gorm.DB, table string, insert func(db *gorm.DB) error) {
	t.Helper()
	fired := false
	name := "test:insert_before_" + table
	err := db.Callback().Create().Before("gorm:begin_transaction").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Schema == nil || tx.Statement.Schema.Table != table {
			return
		}
		if fired {
			return
		}
		// insert 自身の INSERT でも呼ばれるので先に立てる
		fired = true
		require.NoError(t, insert(db))
	})
	require.NoError(t, err)
}
