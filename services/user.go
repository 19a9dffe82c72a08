package services

import (
	"context"
	"strings"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/database"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultAvatarURL = "https://www.gravatar.com/avatar/00000000000000000000000000000000?d=mp&f=y"

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// Identity 検証済み ID トークンから得たユーザー情報
type Identity struct {
	UID      string
	Email    string
	Name     string
	PhotoURL string
}

// FindOrCreate UID → メール (再リンク) → 新規作成 の順で探す
func (s *UserService) FindOrCreate(ctx context.Context, id Identity) (*models.User, bool, error) {
	if id.UID == "" || id.Email == "" {
		return nil, false, apperrors.Unauthorized("Token does not carry a verified email")
	}
	db := s.db.WithContext(ctx)

	var user models.User
	err := db.Where("firebase_uid = ?", id.UID).First(&user).Error
	if err == nil {
		return &user, false, nil
	}
	if !isNotFound(err) {
		return nil, false, internal("failed to look up user", err)
	}

	// 💡 同じメールで別プロバイダから来た場合は UID を付け替える
	err = db.Where("email = ?", id.Email).First(&user).Error
	if err == nil {
		if err := db.Model(&user).Update("firebase_uid", id.UID).Error; err != nil {
			return nil, false, internal("failed to relink user", err)
		}
		return &user, false, nil
	}
	if !isNotFound(err) {
		return nil, false, internal("failed to look up user", err)
	}

	name := strings.TrimSpace(id.Name)
	if name == "" {
		name = strings.SplitN(id.Email, "@", 2)[0]
	}
	avatar := id.PhotoURL
	if avatar == "" {
		avatar = defaultAvatarURL
	}
	user = models.User{
		FirebaseUID: id.UID,
		Email:       id.Email,
		FullName:    name,
		AvatarURL:   avatar,
		IsActive:    true,
	}
	if err := db.Create(&user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			// 同時ログインで先に作られた
			var existing models.User
			if err := db.Where("firebase_uid = ?", id.UID).First(&existing).Error; err == nil {
				return &existing, false, nil
			}
		}
		return nil, false, internal("failed to create user", err)
	}
	return &user, true, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound("User not found")
		}
		return nil, internal("failed to load user", err)
	}
	return &user, nil
}

func (s *UserService) GetByFirebaseUID(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("firebase_uid = ?", uid).First(&user).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound("User not found")
		}
		return nil, internal("failed to load user", err)
	}
	return &user, nil
}

// ProfileUpdate nil のフィールドは変更しない
type ProfileUpdate struct {
	FullName     *string
	PhoneNumber  *string
	SchoolName   *string
	Dormitory    *string
	DateOfBirth  *string // 2006-01-02
	AcademicYear *int
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*models.User, error) {
	updates := map[string]interface{}{}
	if in.FullName != nil {
		name := sanitizeText(*in.FullName)
		if name == "" {
			return nil, apperrors.Validation("full_name must not be empty")
		}
		updates["full_name"] = name
	}
	if in.PhoneNumber != nil {
		updates["phone_number"] = strings.TrimSpace(*in.PhoneNumber)
	}
	if in.SchoolName != nil {
		updates["school_name"] = sanitizeText(*in.SchoolName)
	}
	if in.Dormitory != nil {
		updates["dormitory"] = sanitizeText(*in.Dormitory)
	}
	if in.DateOfBirth != nil {
		dob, err := time.Parse("2006-01-02", *in.DateOfBirth)
		if err != nil {
			return nil, apperrors.Validation("date_of_birth must be YYYY-MM-DD")
		}
		updates["date_of_birth"] = dob
	}
	if in.AcademicYear != nil {
		if *in.AcademicYear < 1 || *in.AcademicYear > 10 {
			return nil, apperrors.Validation("academic_year must be between 1 and 10")
		}
		updates["academic_year"] = *in.AcademicYear
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return user, nil
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, internal("failed to update profile", err)
	}
	return s.GetByID(ctx, userID)
}

func (s *UserService) UpdateAvatar(ctx context.Context, userID, avatarURL string) (*models.User, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("avatar_url", avatarURL)
	if res.Error != nil {
		return nil, internal("failed to update avatar", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.NotFound("User not found")
	}
	return s.GetByID(ctx, userID)
}

// SetFCMToken 空文字でトークン解除
func (s *UserService) SetFCMToken(ctx context.Context, userID, token string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("fcm_token", strings.TrimSpace(token))
	if res.Error != nil {
		return internal("failed to update fcm token", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("User not found")
	}
	return nil
}

// Block 既にブロック済みなら何もしない
func (s *UserService) Block(ctx context.Context, blockerID, blockedID string) error {
	if blockerID == blockedID {
		return apperrors.Validation("You cannot block yourself")
	}
	if _, err := s.GetByID(ctx, blockedID); err != nil {
		return err
	}
	block := models.UserBlock{BlockerID: blockerID, BlockedID: blockedID}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&block).Error; err != nil {
		return internal("failed to block user", err)
	}
	return nil
}

func (s *UserService) Unblock(ctx context.Context, blockerID, blockedID string) error {
	err := s.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&models.UserBlock{}).Error
	if err != nil {
		return internal("failed to unblock user", err)
	}
	return nil
}

func (s *UserService) ListBlocked(ctx context.Context, userID string) ([]models.User, error) {
	var blocks []models.UserBlock
	err := s.db.WithContext(ctx).
		Preload("Blocked").
		Where("blocker_id = ?", userID).
		Order("created_at DESC").
		Find(&blocks).Error
	if err != nil {
		return nil, internal("failed to list blocked users", err)
	}
	users := make([]models.User, 0, len(blocks))
	for _, b := range blocks {
		if b.Blocked != nil {
			users = append(users, *b.Blocked)
		}
	}
	return users, nil
}

// EitherBlocked どちらか一方でもブロックしていれば true
func (s *UserService) EitherBlocked(ctx context.Context, a, b string) (bool, error) {
	return eitherBlocked(s.db.WithContext(ctx), a, b)
}

func eitherBlocked(db *gorm.DB, a, b string) (bool, error) {
	var count int64
	err := db.Model(&models.UserBlock{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}
