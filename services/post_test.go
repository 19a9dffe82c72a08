package services

import (
	"context"
	"testing"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreatePost_PriceRule(t *testing.T) {
	db := newTestDB(t)
	svc := NewPostService(db, nil)
	ctx := context.Background()
	owner := createUser(t, db, "an")
	cat := firstCategory(t, db)

	in := PostInput{CategoryID: &cat.ID, Title: "Giáo trình Giải tích", TransactionType: models.TransactionSell}
	_, err := svc.Create(ctx, owner.ID, in)
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	in.TransactionType = models.TransactionFree
	post, err := svc.Create(ctx, owner.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPosted, post.Status)
	assert.True(t, post.IsAvailable)
	assert.NotNil(t, post.ImageURLs)
	assert.Empty(t, post.ImageURLs)

	in.TransactionType = "auction"
	_, err = svc.Create(ctx, owner.ID, in)
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	missing := "66666666-6666-6666-6666-666666666666"
	_, err = svc.Create(ctx, owner.ID, PostInput{CategoryID: &missing, Title: "x", TransactionType: models.TransactionFree})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	_, err = svc.Create(ctx, owner.ID, PostInput{Title: "x", Price: price(-1), TransactionType: models.TransactionSell})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestSaveDraft_AndPublish(t *testing.T) {
	db := newTestDB(t)
	interest := &recordingInterest{}
	svc := NewPostService(db, interest)
	ctx := context.Background()
	owner := createUser(t, db, "an")
	other := createUser(t, db, "binh")

	draft, err := svc.SaveDraft(ctx, owner.ID, PostInput{Title: "Quạt mini"})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, draft.Status)
	assert.Equal(t, models.TransactionSell, draft.TransactionType)

	_, err = svc.Get(ctx, other.ID, draft.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	drafts, err := svc.Drafts(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, drafts, 1)

	posted := models.PostStatusPosted
	_, err = svc.Update(ctx, owner.ID, draft.ID, PostUpdate{Status: &posted})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation), "sell post needs a price before publishing")

	published, err := svc.Update(ctx, owner.ID, draft.ID, PostUpdate{Status: &posted, Price: price(80000)})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPosted, published.Status)
	assert.Eventually(t, func() bool { return interest.count() == 1 }, time.Second, 10*time.Millisecond)

	_, err = svc.Update(ctx, other.ID, draft.ID, PostUpdate{Title: strPtr("hijack")})
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}

func TestLikeAndSave(t *testing.T) {
	db := newTestDB(t)
	svc := NewPostService(db, nil)
	ctx := context.Background()
	owner := createUser(t, db, "an")
	viewer := createUser(t, db, "binh")
	post := createPost(t, db, owner, "Sách cũ", models.TransactionSell, price(50000))

	require.NoError(t, svc.Like(ctx, viewer.ID, post.ID))
	err := svc.Like(ctx, viewer.ID, post.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))

	err = svc.Like(ctx, owner.ID, post.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))

	err = svc.Like(ctx, viewer.ID, "77777777-7777-7777-7777-777777777777")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	require.NoError(t, svc.Save(ctx, viewer.ID, post.ID))

	view, err := svc.Get(ctx, viewer.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.LikeCount)
	assert.True(t, view.IsLiked)
	assert.True(t, view.IsSaved)
	require.NotNil(t, view.User)
	assert.Equal(t, owner.ID, view.User.ID)
	require.NotNil(t, view.Category)

	ownerView, err := svc.Get(ctx, owner.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, ownerView.IsLiked)

	saved, err := svc.Saved(ctx, viewer.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, saved.Items, 1)
	assert.Equal(t, post.ID, saved.Items[0].ID)

	require.NoError(t, svc.Unlike(ctx, viewer.ID, post.ID))
	require.NoError(t, svc.Unlike(ctx, viewer.ID, post.ID))
	require.NoError(t, svc.Unsave(ctx, viewer.ID, post.ID))

	view, err = svc.Get(ctx, viewer.ID, post.ID)
	require.NoError(t, err)
	assert.Zero(t, view.LikeCount)
	assert.False(t, view.IsSaved)
}

func TestGetPost_IncrementsViewCount(t *testing.T) {
	db := newTestDB(t)
	svc := NewPostService(db, nil)
	owner := createUser(t, db, "an")
	post := createPost(t, db, owner, "Tai nghe", models.TransactionExchange, nil)

	_, err := svc.Get(context.Background(), "", post.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		var p models.Post
		return db.First(&p, "id = ?", post.ID).Error == nil && p.ViewCount == 1
	}, time.Second, 10*time.Millisecond)
}

func TestListPosts_FiltersAndPaging(t *testing.T) {
	db := newTestDB(t)
	svc := NewPostService(db, nil)
	ctx := context.Background()
	a := createUser(t, db, "an")
	b := createUser(t, db, "binh")
	for _, title := range []string{"p1", "p2", "p3"} {
		createPost(t, db, a, title, models.TransactionFree, nil)
	}
	hidden := createPost(t, db, b, "hidden", models.TransactionFree, nil)
	_, err := svc.Remove(ctx, b.ID, hidden.ID, RemoveActionDelete)
	require.NoError(t, err)

	page, err := svc.List(ctx, b.ID, ListPostsParams{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasNext)

	unavailable := false
	page, err = svc.List(ctx, b.ID, ListPostsParams{IsAvailable: &unavailable})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, hidden.ID, page.Items[0].ID)

	page, err = svc.List(ctx, "", ListPostsParams{UserID: b.ID})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	mine, err := svc.MyPosts(ctx, b.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), mine.Total)
}

func TestRemovePost_HideToggles(t *testing.T) {
	db := newTestDB(t)
	svc := NewPostService(db, nil)
	ctx := context.Background()
	owner := createUser(t, db, "an")
	post := createPost(t, db, owner, "Đèn học", models.TransactionFree, nil)

	p, err := svc.Remove(ctx, owner.ID, post.ID, RemoveActionHide)
	require.NoError(t, err)
	assert.False(t, p.IsAvailable)
	p, err = svc.Remove(ctx, owner.ID, post.ID, RemoveActionHide)
	require.NoError(t, err)
	assert.True(t, p.IsAvailable)

	_, err = svc.Remove(ctx, owner.ID, post.ID, "archive")
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	other := createUser(t, db, "binh")
	_, err = svc.Remove(ctx, other.ID, post.ID, "")
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}

func TestPostImages_Cap(t *testing.T) {
	db := newTestDB(t)
	svc := NewPostService(db, nil)
	ctx := context.Background()
	owner := createUser(t, db, "an")
	post := createPost(t, db, owner, "Laptop", models.TransactionSell, price(5000000))

	_, err := svc.UpdateImages(ctx, owner.ID, post.ID, make([]string, models.MaxImages+1))
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	p, err := svc.UpdateImages(ctx, owner.ID, post.ID, []string{"https://img/1.jpg", "https://img/2.jpg"})
	require.NoError(t, err)
	assert.Len(t, p.ImageURLs, 2)

	assert.NoError(t, svc.CheckImageCapacity(ctx, owner.ID, post.ID, 8))
	assert.Error(t, svc.CheckImageCapacity(ctx, owner.ID, post.ID, 9))

	p, err = svc.AppendImages(ctx, owner.ID, post.ID, []string{"https://img/3.jpg"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img/1.jpg", "https://img/2.jpg", "https://img/3.jpg"}, []string(p.ImageURLs))

	var stored models.Post
	require.NoError(t, db.First(&stored, "id = ?", post.ID).Error)
	assert.Len(t, stored.ImageURLs, 3)
}

func TestRepost_CopiesOriginal(t *testing.T) {
	db := newTestDB(t)
	svc := NewPostService(db, nil)
	ctx := context.Background()
	owner := createUser(t, db, "an")
	post := createPost(t, db, owner, "Nồi cơm", models.TransactionSell, price(120000))

	re, err := svc.Repost(ctx, owner.ID, post.ID, RepostInput{Title: strPtr("Nồi cơm điện (giảm giá)")})
	require.NoError(t, err)
	assert.NotEqual(t, post.ID, re.ID)
	require.NotNil(t, re.OriginalPostID)
	assert.Equal(t, post.ID, *re.OriginalPostID)
	assert.Equal(t, "Nồi cơm điện (giảm giá)", re.Title)
	assert.Equal(t, post.Description, re.Description)
	assert.Equal(t, int64(120000), *re.Price)

	other := createUser(t, db, "binh")
	_, err = svc.Repost(ctx, other.ID, post.ID, RepostInput{})
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}

type recordingInterest struct {
	recordingNotifier
}

func (r *recordingInterest) NotifyInterestedUsers(ctx context.Context, post *models.Post) error {
	return r.Notify(ctx, NotificationInput{UserID: post.UserID, Type: models.NotificationNewPostInInterest})
}

func (r *recordingInterest) count() int {
	return len(r.byType(models.NotificationNewPostInInterest))
}

func TestLikeAndSave_LosingConcurrentInsertIsConflict(t *testing.T) {
	db := newTestDB(t)
	svc := NewPostService(db, nil)
	ctx := context.Background()
	owner := createUser(t, db, "an")
	viewer := createUser(t, db, "binh")
	post := createPost(t, db, owner, "Sách cũ", models.TransactionSell, price(50000))

	insertBeforeCreate(t, db, "post_likes", func(db *gorm.DB) error {
		return db.Create(&models.PostLike{UserID: viewer.ID, PostID: post.ID}).Error
	})
	insertBeforeCreate(t, db, "post_saves", func(db *gorm.DB) error {
		return db.Create(&models.PostSave{UserID: viewer.ID, PostID: post.ID}).Error
	})

	err := svc.Like(ctx, viewer.ID, post.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict), "got %v", err)
	err = svc.Save(ctx, viewer.ID, post.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict), "got %v", err)

	var likes, saves int64
	require.NoError(t, db.Model(&models.PostLike{}).Count(&likes).Error)
	require.NoError(t, db.Model(&models.PostSave{}).Count(&saves).Error)
	assert.Equal(t, int64(1), likes)
	assert.Equal(t, int64(1), saves)
}
