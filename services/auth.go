package services

import (
	"context"
	"log/slog"

	"firebase.google.com/go/v4/auth"
	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/models"
)

// IdentityProvider Firebase Auth のうち使う部分。*auth.Client が満たす
type IdentityProvider interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

type AuthService struct {
	idp   IdentityProvider
	users *UserService
}

func NewAuthService(idp IdentityProvider, users *UserService) *AuthService {
	return &AuthService{idp: idp, users: users}
}

// Verify ID トークンを検証し、ローカルユーザーを取得または作成する
func (s *AuthService) Verify(ctx context.Context, idToken string) (*models.User, bool, error) {
	if idToken == "" {
		return nil, false, apperrors.Unauthorized("ID token is required")
	}
	token, err := s.idp.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.CodeUnauthenticated, "Invalid ID token", err)
	}
	record, err := s.idp.GetUser(ctx, token.UID)
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.CodeUnauthenticated, "Failed to load identity", err)
	}

	id := Identity{UID: token.UID}
	if record.UserInfo != nil {
		id.Email = record.Email
		id.Name = record.DisplayName
		id.PhotoURL = record.PhotoURL
	}
	user, created, err := s.users.FindOrCreate(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !user.IsActive {
		return nil, false, apperrors.Forbidden("Account is disabled")
	}
	return user, created, nil
}

// Authenticate 既存ユーザーのみ。ミドルウェアと WebSocket 接続で使う
func (s *AuthService) Authenticate(ctx context.Context, idToken string) (*models.User, error) {
	if idToken == "" {
		return nil, apperrors.Unauthorized("Authorization token is required")
	}
	token, err := s.idp.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnauthenticated, "Invalid or expired token", err)
	}
	user, err := s.users.GetByFirebaseUID(ctx, token.UID)
	if err != nil {
		if apperrors.Is(err, apperrors.CodeNotFound) {
			return nil, apperrors.Unauthorized("User is not registered")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.Unauthorized("Account is disabled")
	}
	return user, nil
}

// Logout リフレッシュトークン失効。失敗してもログアウトは成功扱い
func (s *AuthService) Logout(ctx context.Context, user *models.User) {
	if err := s.idp.RevokeRefreshTokens(ctx, user.FirebaseUID); err != nil {
		slog.Warn("failed to revoke refresh tokens", slog.String("user_id", user.ID), slog.Any("error", err))
	}
}
