package handlers

import (
	"net/http"

	"github.com/Kousuke-irie/campus-market-backend/middleware"
	"github.com/gin-gonic/gin"
)

type VerifyRequest struct {
	IDToken string `json:"id_token"`
}

// VerifyHandler Firebase ID トークンを検証し、ローカルユーザーを取得/作成する。
// トークンは Authorization ヘッダー優先、なければボディの id_token
func (h *Handler) VerifyHandler(c *gin.Context) {
	token := middleware.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		var req VerifyRequest
		// ボディなしも許容する (トークン無しは下で 401)
		_ = c.ShouldBindJSON(&req)
		token = req.IDToken
	}

	user, created, err := h.Auth.Verify(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}

	status, message := http.StatusOK, "Login successful"
	if created {
		status, message = http.StatusCreated, "User registered"
	}
	respond(c, status, message, gin.H{"user": user, "is_new_user": created})
}

// LogoutHandler 失効に失敗しても成功を返す
func (h *Handler) LogoutHandler(c *gin.Context) {
	if user := middleware.CurrentUser(c); user != nil {
		h.Auth.Logout(c.Request.Context(), user)
	}
	respond(c, http.StatusOK, "Logged out", nil)
}
