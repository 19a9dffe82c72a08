package services

import (
	"context"
	"strings"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/database"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InterestNotifier 投稿公開時の購読者通知
type InterestNotifier interface {
	NotifyInterestedUsers(ctx context.Context, post *models.Post) error
}

type PostService struct {
	db       *gorm.DB
	interest InterestNotifier
}

func NewPostService(db *gorm.DB, interest InterestNotifier) *PostService {
	return &PostService{db: db, interest: interest}
}

// PostView 閲覧者ごとの集計を付けた投稿
type PostView struct {
	models.Post
	LikeCount int64 `json:"like_count"`
	IsLiked   bool  `json:"is_liked"`
	IsSaved   bool  `json:"is_saved"`
}

type PostInput struct {
	CategoryID      *string
	Title           string
	Description     string
	Price           *int64
	Location        string
	TransactionType string
	ImageURLs       []string
}

// validatePost 公開状態の投稿に対するルール。下書きでは価格ルールを緩める
func validatePost(p *models.Post) error {
	if !models.ValidTransactionType(p.TransactionType) {
		return apperrors.Validation("transaction_type must be one of sell, exchange, free")
	}
	if p.Price != nil && *p.Price < 0 {
		return apperrors.Validation("price must not be negative")
	}
	if len(p.ImageURLs) > models.MaxImages {
		return apperrors.Validation("a post can have at most 10 images")
	}
	if p.Status != models.PostStatusPosted {
		return nil
	}
	if strings.TrimSpace(p.Title) == "" {
		return apperrors.Validation("title is required")
	}
	if p.TransactionType == models.TransactionSell && p.Price == nil {
		return apperrors.Validation("price is required for sell posts")
	}
	return nil
}

func (s *PostService) checkCategory(ctx context.Context, id *string) error {
	if id == nil || *id == "" {
		return nil
	}
	_, err := findCategory(s.db.WithContext(ctx), *id)
	return err
}

func (s *PostService) create(ctx context.Context, userID string, in PostInput, status string) (*models.Post, error) {
	images := in.ImageURLs
	if images == nil {
		images = []string{}
	}
	txType := in.TransactionType
	if txType == "" && status == models.PostStatusDraft {
		txType = models.TransactionSell
	}
	post := &models.Post{
		UserID:          userID,
		CategoryID:      emptyToNil(in.CategoryID),
		Title:           sanitizeText(in.Title),
		Description:     sanitizeText(in.Description),
		Price:           in.Price,
		Location:        sanitizeText(in.Location),
		TransactionType: txType,
		Status:          status,
		IsAvailable:     true,
		ImageURLs:       datatypes.JSONSlice[string](images),
	}
	if err := validatePost(post); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, post.CategoryID); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, internal("failed to create post", err)
	}
	if status == models.PostStatusPosted {
		s.announce(post)
	}
	return post, nil
}

// Create 公開投稿の作成
func (s *PostService) Create(ctx context.Context, userID string, in PostInput) (*models.Post, error) {
	return s.create(ctx, userID, in, models.PostStatusPosted)
}

// SaveDraft 下書き保存
func (s *PostService) SaveDraft(ctx context.Context, userID string, in PostInput) (*models.Post, error) {
	return s.create(ctx, userID, in, models.PostStatusDraft)
}

func (s *PostService) announce(post *models.Post) {
	if s.interest == nil {
		return
	}
	p := *post
	runDetached("notify interested users", func(ctx context.Context) error {
		return s.interest.NotifyInterestedUsers(ctx, &p)
	})
}

func (s *PostService) load(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, "id = ?", postID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound("Post not found")
		}
		return nil, internal("failed to load post", err)
	}
	return &post, nil
}

func (s *PostService) loadOwned(ctx context.Context, userID, postID string) (*models.Post, error) {
	post, err := s.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, apperrors.Forbidden("You do not own this post")
	}
	return post, nil
}

type postStats struct {
	ID        string
	LikeCount int64
	Liked     int
	Saved     int
}

// decorate 相関サブクエリで like 数・閲覧者の like/save を付ける
func (s *PostService) decorate(ctx context.Context, viewerID string, posts []models.Post) ([]PostView, error) {
	views := make([]PostView, len(posts))
	if len(posts) == 0 {
		return views, nil
	}
	ids := make([]string, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}

	var stats []postStats
	err := s.db.WithContext(ctx).Model(&models.Post{}).
		Select(`posts.id AS id,
			(SELECT COUNT(*) FROM post_likes pl WHERE pl.post_id = posts.id) AS like_count,
			CASE WHEN EXISTS (SELECT 1 FROM post_likes pl WHERE pl.post_id = posts.id AND pl.user_id = ?) THEN 1 ELSE 0 END AS liked,
			CASE WHEN EXISTS (SELECT 1 FROM post_saves ps WHERE ps.post_id = posts.id AND ps.user_id = ?) THEN 1 ELSE 0 END AS saved`,
			viewerID, viewerID).
		Where("posts.id IN ?", ids).
		Scan(&stats).Error
	if err != nil {
		return nil, internal("failed to load post stats", err)
	}
	byID := make(map[string]postStats, len(stats))
	for _, st := range stats {
		byID[st.ID] = st
	}
	for i := range posts {
		st := byID[posts[i].ID]
		views[i] = PostView{Post: posts[i], LikeCount: st.LikeCount, IsLiked: st.Liked == 1, IsSaved: st.Saved == 1}
	}
	return views, nil
}

func withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("User").Preload("Category")
}

// Get 閲覧数は非同期で加算する
func (s *PostService) Get(ctx context.Context, viewerID, postID string) (*PostView, error) {
	var post models.Post
	if err := withRelations(s.db.WithContext(ctx)).First(&post, "id = ?", postID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound("Post not found")
		}
		return nil, internal("failed to load post", err)
	}
	if post.Status == models.PostStatusDraft && post.UserID != viewerID {
		return nil, apperrors.NotFound("Post not found")
	}

	runDetached("increment view count", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
	})

	views, err := s.decorate(ctx, viewerID, []models.Post{post})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

type ListPostsParams struct {
	CategoryID  string
	UserID      string
	IsAvailable *bool
	Page        int
	Limit       int
}

func (s *PostService) List(ctx context.Context, viewerID string, p ListPostsParams) (*Page[PostView], error) {
	available := true
	if p.IsAvailable != nil {
		available = *p.IsAvailable
	}
	q := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("status = ? AND is_available = ?", models.PostStatusPosted, available)
	if p.CategoryID != "" {
		q = q.Where("category_id = ?", p.CategoryID)
	}
	if p.UserID != "" {
		q = q.Where("user_id = ?", p.UserID)
	}
	return s.paginate(ctx, viewerID, q, "created_at DESC", p.Page, p.Limit)
}

func (s *PostService) paginate(ctx context.Context, viewerID string, q *gorm.DB, order string, page, limit int) (*Page[PostView], error) {
	page, limit = normalizePage(page, limit)
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, internal("failed to count posts", err)
	}
	var posts []models.Post
	err := withRelations(q.Session(&gorm.Session{})).
		Order(order).Limit(limit).Offset(offset(page, limit)).
		Find(&posts).Error
	if err != nil {
		return nil, internal("failed to list posts", err)
	}
	views, err := s.decorate(ctx, viewerID, posts)
	if err != nil {
		return nil, err
	}
	result := newPage(views, total, page, limit)
	return &result, nil
}

// MyPosts 自分の公開投稿 (非表示も含む)
func (s *PostService) MyPosts(ctx context.Context, userID string, page, limit int) (*Page[PostView], error) {
	q := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("user_id = ? AND status = ?", userID, models.PostStatusPosted)
	return s.paginate(ctx, userID, q, "created_at DESC", page, limit)
}

func (s *PostService) Drafts(ctx context.Context, userID string) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).Preload("Category").
		Where("user_id = ? AND status = ?", userID, models.PostStatusDraft).
		Order("updated_at DESC").
		Find(&posts).Error
	if err != nil {
		return nil, internal("failed to list drafts", err)
	}
	return posts, nil
}

func (s *PostService) Saved(ctx context.Context, userID string, page, limit int) (*Page[PostView], error) {
	q := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("id IN (?)", s.db.Model(&models.PostSave{}).Select("post_id").Where("user_id = ?", userID))
	return s.paginate(ctx, userID, q, "created_at DESC", page, limit)
}

// PostUpdate nil のフィールドは変更しない
type PostUpdate struct {
	CategoryID      *string
	Title           *string
	Description     *string
	Price           *int64
	ClearPrice      bool
	Location        *string
	TransactionType *string
	Status          *string
	IsAvailable     *bool
}

func (s *PostService) Update(ctx context.Context, userID, postID string, in PostUpdate) (*models.Post, error) {
	post, err := s.loadOwned(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	wasDraft := post.Status == models.PostStatusDraft

	if in.CategoryID != nil {
		post.CategoryID = emptyToNil(in.CategoryID)
		if err := s.checkCategory(ctx, post.CategoryID); err != nil {
			return nil, err
		}
	}
	if in.Title != nil {
		post.Title = sanitizeText(*in.Title)
	}
	if in.Description != nil {
		post.Description = sanitizeText(*in.Description)
	}
	if in.ClearPrice {
		post.Price = nil
	} else if in.Price != nil {
		post.Price = in.Price
	}
	if in.Location != nil {
		post.Location = sanitizeText(*in.Location)
	}
	if in.TransactionType != nil {
		post.TransactionType = *in.TransactionType
	}
	if in.Status != nil {
		if !models.ValidPostStatus(*in.Status) {
			return nil, apperrors.Validation("status must be draft or posted")
		}
		post.Status = *in.Status
	}
	if in.IsAvailable != nil {
		post.IsAvailable = *in.IsAvailable
	}
	if err := validatePost(post); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Model(post).Select(
		"CategoryID", "Title", "Description", "Price", "Location",
		"TransactionType", "Status", "IsAvailable",
	).Updates(post).Error
	if err != nil {
		return nil, internal("failed to update post", err)
	}
	if wasDraft && post.Status == models.PostStatusPosted {
		s.announce(post)
	}
	return post, nil
}

// UpdateImages 画像リストを置き換える
func (s *PostService) UpdateImages(ctx context.Context, userID, postID string, urls []string) (*models.Post, error) {
	if len(urls) > models.MaxImages {
		return nil, apperrors.Validation("a post can have at most 10 images")
	}
	post, err := s.loadOwned(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if urls == nil {
		urls = []string{}
	}
	post.ImageURLs = datatypes.JSONSlice[string](urls)
	if err := s.db.WithContext(ctx).Model(post).Update("image_urls", post.ImageURLs).Error; err != nil {
		return nil, internal("failed to update images", err)
	}
	return post, nil
}

// CheckImageCapacity アップロード前に追加枚数を確認する
func (s *PostService) CheckImageCapacity(ctx context.Context, userID, postID string, adding int) error {
	post, err := s.loadOwned(ctx, userID, postID)
	if err != nil {
		return err
	}
	if len(post.ImageURLs)+adding > models.MaxImages {
		return apperrors.Validation("a post can have at most 10 images")
	}
	return nil
}

// AppendImages アップロード済み画像を末尾に追加する
func (s *PostService) AppendImages(ctx context.Context, userID, postID string, urls []string) (*models.Post, error) {
	post, err := s.loadOwned(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	images := append([]string{}, post.ImageURLs...)
	images = append(images, urls...)
	if len(images) > models.MaxImages {
		return nil, apperrors.Validation("a post can have at most 10 images")
	}
	post.ImageURLs = datatypes.JSONSlice[string](images)
	if err := s.db.WithContext(ctx).Model(post).Update("image_urls", post.ImageURLs).Error; err != nil {
		return nil, internal("failed to update images", err)
	}
	return post, nil
}

const (
	RemoveActionHide   = "hide"
	RemoveActionDelete = "delete"
)

// Remove hide は表示/非表示の切り替え、delete は非表示にする (行は残す)
func (s *PostService) Remove(ctx context.Context, userID, postID, action string) (*models.Post, error) {
	if action == "" {
		action = RemoveActionDelete
	}
	if action != RemoveActionHide && action != RemoveActionDelete {
		return nil, apperrors.Validation("action must be hide or delete")
	}
	post, err := s.loadOwned(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	available := false
	if action == RemoveActionHide {
		available = !post.IsAvailable
	}
	if err := s.db.WithContext(ctx).Model(post).Update("is_available", available).Error; err != nil {
		return nil, internal("failed to update post", err)
	}
	post.IsAvailable = available
	return post, nil
}

type RepostInput struct {
	Title       *string
	Description *string
}

// Repost 元投稿をコピーして新しい公開投稿を作る
func (s *PostService) Repost(ctx context.Context, userID, postID string, in RepostInput) (*models.Post, error) {
	original, err := s.loadOwned(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	images := append([]string{}, original.ImageURLs...)
	post := &models.Post{
		UserID:          userID,
		CategoryID:      original.CategoryID,
		Title:           original.Title,
		Description:     original.Description,
		Price:           original.Price,
		Location:        original.Location,
		TransactionType: original.TransactionType,
		Status:          models.PostStatusPosted,
		IsAvailable:     true,
		ImageURLs:       datatypes.JSONSlice[string](images),
		OriginalPostID:  &original.ID,
	}
	if in.Title != nil {
		post.Title = sanitizeText(*in.Title)
	}
	if in.Description != nil {
		post.Description = sanitizeText(*in.Description)
	}
	if err := validatePost(post); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, internal("failed to repost", err)
	}
	s.announce(post)
	return post, nil
}

// Like 自分の投稿・二重 like は 409
func (s *PostService) Like(ctx context.Context, userID, postID string) error {
	return s.react(ctx, userID, postID, &models.PostLike{UserID: userID, PostID: postID}, "like")
}

func (s *PostService) Unlike(ctx context.Context, userID, postID string) error {
	err := s.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.PostLike{}).Error
	if err != nil {
		return internal("failed to unlike post", err)
	}
	return nil
}

func (s *PostService) Save(ctx context.Context, userID, postID string) error {
	return s.react(ctx, userID, postID, &models.PostSave{UserID: userID, PostID: postID}, "save")
}

func (s *PostService) Unsave(ctx context.Context, userID, postID string) error {
	err := s.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.PostSave{}).Error
	if err != nil {
		return internal("failed to unsave post", err)
	}
	return nil
}

func (s *PostService) react(ctx context.Context, userID, postID string, row interface{}, verb string) error {
	post, err := s.load(ctx, postID)
	if err != nil {
		return err
	}
	if post.UserID == userID {
		return apperrors.Conflict("You cannot " + verb + " your own post")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(row).Where("user_id = ? AND post_id = ?", userID, postID).Count(&count).Error; err != nil {
		return internal("failed to check "+verb, err)
	}
	if count > 0 {
		return apperrors.Conflict("Post already " + pastTense(verb))
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("Post already " + pastTense(verb))
		}
		return internal("failed to "+verb+" post", err)
	}
	return nil
}

func pastTense(verb string) string {
	return verb + "d"
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
