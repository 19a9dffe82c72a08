package handlers

import (
	"log/slog"
	"sync"

	"github.com/Kousuke-irie/campus-market-backend/models"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators binding タグ用のカスタムバリデータを gin のエンジンに登録する
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			slog.Warn("gin validator engine is not validator/v10, custom validators disabled")
			return
		}
		_ = v.RegisterValidation("transaction_type", func(fl validator.FieldLevel) bool {
			return models.ValidTransactionType(fl.Field().String())
		})
		// 空文字は text として扱う
		_ = v.RegisterValidation("message_type", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "" || models.ValidMessageType(s)
		})
	})
}
