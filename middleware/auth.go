package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"github.com/gin-gonic/gin"
)

const (
	currentUserKey = "currentUser"
	userIDKey      = "userID"
)

// Authenticator ID トークンからローカルユーザーを引く。services.AuthService が満たす
type Authenticator interface {
	Authenticate(ctx context.Context, idToken string) (*models.User, error)
}

// BearerToken "Bearer xxx" からトークン部分を取り出す
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// RequireAuth 認証必須。失敗時は 401
func RequireAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Authorization header is required",
				"error":   apperrors.CodeUnauthenticated,
			})
			return
		}
		user, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(apperrors.HTTPStatus(err), gin.H{
				"message": apperrors.PublicMessage(err),
				"error":   apperrors.CodeOf(err),
			})
			return
		}
		SetCurrentUser(c, user)
		c.Next()
	}
}

// OptionalAuth トークンがあれば検証してユーザーを設定する。無効なトークンは無視する
func OptionalAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := BearerToken(c.GetHeader("Authorization")); token != "" {
			if user, err := a.Authenticate(c.Request.Context(), token); err == nil {
				SetCurrentUser(c, user)
			}
		}
		c.Next()
	}
}

func SetCurrentUser(c *gin.Context, user *models.User) {
	c.Set(currentUserKey, user)
	c.Set(userIDKey, user.ID)
}

// CurrentUser 未認証なら nil
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(currentUserKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

// UserID 未認証なら空文字
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
