package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base UUID 主キーと作成日時
type Base struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// User ユーザー
type User struct {
	Base
	FirebaseUID     string     `gorm:"size:128;uniqueIndex;not null" json:"firebase_uid"`
	Email           string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	FullName        string     `gorm:"size:100;not null" json:"full_name"`
	PhoneNumber     *string    `gorm:"size:20" json:"phone_number"`
	AvatarURL       string     `gorm:"type:text" json:"avatar_url"`
	SchoolName      *string    `gorm:"size:255" json:"school_name"`
	Dormitory       *string    `gorm:"size:255" json:"dormitory"`
	DateOfBirth     *time.Time `json:"date_of_birth"`
	AcademicYear    *int       `json:"academic_year"`
	ReputationScore int        `gorm:"not null;default:0" json:"reputation_score"`
	TotalVotesUp    int        `gorm:"not null;default:0" json:"total_votes_up"`
	TotalVotesDown  int        `gorm:"not null;default:0" json:"total_votes_down"`
	IsActive        bool       `gorm:"not null;default:true" json:"is_active"`
	FCMToken        string     `gorm:"size:255" json:"-"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// UserBlock ブロック関係 (blocker -> blocked)。逆方向が blocked-by
type UserBlock struct {
	BlockerID string    `gorm:"type:char(36);primaryKey" json:"blocker_id"`
	BlockedID string    `gorm:"type:char(36);primaryKey;index" json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`

	Blocker *User `gorm:"foreignKey:BlockerID;constraint:OnDelete:CASCADE" json:"-"`
	Blocked *User `gorm:"foreignKey:BlockedID;constraint:OnDelete:CASCADE" json:"blocked,omitempty"`
}

// Category 商品カテゴリ
type Category struct {
	Base
	CategoryName string            `gorm:"size:100;uniqueIndex;not null" json:"category_name"`
	Description  string            `gorm:"type:text" json:"description"`
	IconURL      string            `gorm:"type:text" json:"icon_url"`
	Keywords     []CategoryKeyword `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"keywords,omitempty"`
}

type CategoryKeyword struct {
	Base
	CategoryID string `gorm:"type:char(36);not null;index:idx_category_keyword,unique" json:"category_id"`
	Keyword    string `gorm:"size:100;not null;index:idx_category_keyword,unique" json:"keyword"`
}

// UserInterest カテゴリ単位の購読。Keywords が空ならカテゴリ全体が対象
type UserInterest struct {
	Base
	UserID     string                      `gorm:"type:char(36);not null;index:idx_user_interest,unique" json:"user_id"`
	CategoryID string                      `gorm:"type:char(36);not null;index:idx_user_interest,unique" json:"category_id"`
	Keywords   datatypes.JSONSlice[string] `json:"keywords"`
	IsActive   bool                        `gorm:"not null;default:true" json:"is_active"`
	UpdatedAt  time.Time                   `json:"updated_at"`

	User     *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Category *Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"category,omitempty"`
}

// Post 出品
type Post struct {
	Base
	UserID          string                      `gorm:"type:char(36);not null;index" json:"user_id"`
	CategoryID      *string                     `gorm:"type:char(36);index" json:"category_id"`
	Title           string                      `gorm:"size:255;not null" json:"title"`
	Description     string                      `gorm:"type:text" json:"description"`
	Price           *int64                      `json:"price"`
	Location        string                      `gorm:"size:255" json:"location"`
	TransactionType string                      `gorm:"size:20;not null;index" json:"transaction_type"`
	Status          string                      `gorm:"size:20;not null;default:posted;index" json:"status"`
	IsAvailable     bool                        `gorm:"not null;default:true;index" json:"is_available"`
	ViewCount       int                         `gorm:"not null;default:0" json:"view_count"`
	ImageURLs       datatypes.JSONSlice[string] `json:"image_urls"`
	OriginalPostID  *string                     `gorm:"type:char(36)" json:"original_post_id,omitempty"`
	UpdatedAt       time.Time                   `json:"updated_at"`

	User     *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Category *Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"category,omitempty"`
}

type PostLike struct {
	Base
	UserID string `gorm:"type:char(36);not null;index:idx_post_like,unique" json:"user_id"`
	PostID string `gorm:"type:char(36);not null;index:idx_post_like,unique;index" json:"post_id"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Post *Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
}

type PostSave struct {
	Base
	UserID string `gorm:"type:char(36);not null;index:idx_post_save,unique" json:"user_id"`
	PostID string `gorm:"type:char(36);not null;index:idx_post_save,unique;index" json:"post_id"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Post *Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"post,omitempty"`
}

// Conversation 2者間スレッド。InitiatorID < RecipientID で正規化して保存する。
// ContextKey は PostID (なければ空文字) で、NULL を含むユニーク制約の抜けを防ぐ
type Conversation struct {
	Base
	InitiatorID       string     `gorm:"type:char(36);not null;index:idx_conversation_pair,unique" json:"initiator_id"`
	RecipientID       string     `gorm:"type:char(36);not null;index:idx_conversation_pair,unique;index" json:"recipient_id"`
	ContextKey        string     `gorm:"size:36;not null;index:idx_conversation_pair,unique" json:"-"`
	PostID            *string    `gorm:"type:char(36);index" json:"post_id"`
	InitiatorLastRead *time.Time `json:"initiator_last_read"`
	RecipientLastRead *time.Time `json:"recipient_last_read"`
	LastMessageAt     time.Time  `gorm:"not null;index" json:"last_message_at"`
	IsLocked          bool       `gorm:"not null;default:false" json:"is_locked"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	FinalPrice        *int64     `json:"final_price,omitempty"`
	CompletionNotes   string     `gorm:"type:text" json:"completion_notes,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`

	Initiator *User `gorm:"foreignKey:InitiatorID;constraint:OnDelete:CASCADE" json:"initiator,omitempty"`
	Recipient *User `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE" json:"recipient,omitempty"`
	Post      *Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"post,omitempty"`
}

// IsParticipant userID がこの会話の当事者かどうか
func (c *Conversation) IsParticipant(userID string) bool {
	return c.InitiatorID == userID || c.RecipientID == userID
}

// PartnerID 相手側のユーザーID
func (c *Conversation) PartnerID(userID string) string {
	if c.InitiatorID == userID {
		return c.RecipientID
	}
	return c.InitiatorID
}

// LastReadOf userID 側の既読時刻
func (c *Conversation) LastReadOf(userID string) *time.Time {
	if c.InitiatorID == userID {
		return c.InitiatorLastRead
	}
	return c.RecipientLastRead
}

// Message SenderID が nil のものはシステムメッセージ
type Message struct {
	ID             string    `gorm:"type:char(36);primaryKey" json:"message_id"`
	ConversationID string    `gorm:"type:char(36);not null;index:idx_message_conversation_sent" json:"conversation_id"`
	SenderID       *string   `gorm:"type:char(36);index" json:"sender_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	MessageType    string    `gorm:"size:10;not null;default:text" json:"message_type"`
	SentAt         time.Time `gorm:"not null;index:idx_message_conversation_sent" json:"sent_at"`

	Conversation *Conversation `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
	Sender       *User         `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"sender,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Rating 評価 (rater -> rated_user)。ContextKey は PostID または空文字
type Rating struct {
	Base
	RaterID        string                      `gorm:"type:char(36);not null;index:idx_rating_unique,unique" json:"rater_id"`
	RatedUserID    string                      `gorm:"type:char(36);not null;index:idx_rating_unique,unique;index" json:"rated_user_id"`
	ContextKey     string                      `gorm:"size:36;not null;index:idx_rating_unique,unique" json:"-"`
	PostID         *string                     `gorm:"type:char(36);index" json:"post_id"`
	RatingScore    int                         `gorm:"not null" json:"rating_score"`
	Comment        string                      `gorm:"type:text" json:"comment"`
	ProofImageURLs datatypes.JSONSlice[string] `json:"proof_image_urls"`
	UpdatedAt      time.Time                   `json:"updated_at"`

	Rater     *User `gorm:"foreignKey:RaterID;constraint:OnDelete:CASCADE" json:"rater,omitempty"`
	RatedUser *User `gorm:"foreignKey:RatedUserID;constraint:OnDelete:CASCADE" json:"rated_user,omitempty"`
	Post      *Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"post,omitempty"`
}

type SearchHistory struct {
	Base
	UserID  string `gorm:"type:char(36);not null;index" json:"user_id"`
	Keyword string `gorm:"size:255;not null" json:"keyword"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// Notification 通知
type Notification struct {
	Base
	UserID           string  `gorm:"type:char(36);not null;index" json:"user_id"`
	PostID           *string `gorm:"type:char(36);index" json:"post_id"`
	CategoryID       *string `gorm:"type:char(36);index" json:"category_id"`
	NotificationType string  `gorm:"size:50;not null" json:"notification_type"`
	Title            string  `gorm:"size:255;not null" json:"title"`
	Content          string  `gorm:"type:text;not null" json:"content"`
	IsRead           bool    `gorm:"not null;default:false" json:"is_read"`

	User     *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Post     *Post     `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	Category *Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"-"`
}

// AllModels AutoMigrate 対象 (依存順)
func AllModels() []interface{} {
	return []interface{}{
		&User{}, &UserBlock{}, &Category{}, &CategoryKeyword{}, &UserInterest{},
		&Post{}, &PostLike{}, &PostSave{}, &Conversation{}, &Message{},
		&Rating{}, &SearchHistory{}, &Notification{},
	}
}
