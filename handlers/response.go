package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/gemini"
	"github.com/Kousuke-irie/campus-market-backend/metrics"
	"github.com/Kousuke-irie/campus-market-backend/middleware"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"github.com/Kousuke-irie/campus-market-backend/services"
	"github.com/Kousuke-irie/campus-market-backend/storage"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// PostAnalyzer gemini.Analyzer が満たす
type PostAnalyzer interface {
	AnalyzePostImage(ctx context.Context, image []byte, imageFormat string, categories []gemini.CategoryOption) (*gemini.Suggestion, error)
}

// MessageDeliverer gateway.Gateway が満たす
type MessageDeliverer interface {
	DeliverMessage(msg *models.Message)
}

type Deps struct {
	Auth          *services.AuthService
	Users         *services.UserService
	Categories    *services.CategoryService
	Posts         *services.PostService
	Chat          *services.ChatService
	Ratings       *services.RatingService
	Search        *services.SearchService
	Notifications *services.NotificationService
	Interests     *services.InterestService
	Payments      *services.PaymentService

	// 以下は未設定 (nil) でも起動できる
	Storage  storage.Storage
	Analyzer PostAnalyzer
	Gateway  MessageDeliverer
	Metrics  *metrics.Collector
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	return &Handler{Deps: d}
}

// respond 成功時のエンベロープ {message, data}
func respond(c *gin.Context, status int, message string, data interface{}) {
	body := gin.H{"message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// respondError AppError をステータスに変換する。5xx は詳細を隠してログに出す
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("user_id", middleware.UserID(c)),
			slog.Any("error", err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{
		"message": apperrors.PublicMessage(err),
		"error":   apperrors.CodeOf(err),
	})
}

// bindJSON バインドエラーは 400 で返す。false なら呼び出し側は即 return
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, apperrors.Validation(bindingMessage(err)))
		return false
	}
	return true
}

// bindOptionalJSON 空ボディはゼロ値のまま通す (chunked で ContentLength が -1 でも読む)
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, apperrors.Validation(bindingMessage(err)))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		respondError(c, apperrors.Validation(bindingMessage(err)))
		return false
	}
	return true
}

// bindingMessage 最初のフィールドエラーだけを返す
func bindingMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "transaction_type":
			return fe.Field() + " must be one of sell, exchange, free"
		case "message_type":
			return fe.Field() + " must be one of text, image, file"
		case "min", "gte":
			return fe.Field() + " must be at least " + fe.Param()
		case "max", "lte":
			return fe.Field() + " must be at most " + fe.Param()
		default:
			return fe.Field() + " is invalid"
		}
	}
	return "Invalid request format"
}

// pageParams ?page=&limit= 。正規化はサービス側で行う
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return page, limit
}

func currentUserID(c *gin.Context) string {
	return middleware.UserID(c)
}
