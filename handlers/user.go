package handlers

import (
	"net/http"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/middleware"
	"github.com/Kousuke-irie/campus-market-backend/services"
	"github.com/gin-gonic/gin"
)

// UpdateUserRequest 指定されたフィールドのみ更新する
type UpdateUserRequest struct {
	FullName     *string `json:"full_name" binding:"omitempty,max=100"`
	PhoneNumber  *string `json:"phone_number" binding:"omitempty,max=20"`
	SchoolName   *string `json:"school_name" binding:"omitempty,max=255"`
	Dormitory    *string `json:"dormitory" binding:"omitempty,max=255"`
	DateOfBirth  *string `json:"date_of_birth"`
	AcademicYear *int    `json:"academic_year"`
}

func (h *Handler) GetMeHandler(c *gin.Context) {
	respond(c, http.StatusOK, "User retrieved", middleware.CurrentUser(c))
}

func (h *Handler) GetUserHandler(c *gin.Context) {
	user, err := h.Users.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "User retrieved", user)
}

func (h *Handler) UpdateMeHandler(c *gin.Context) {
	var req UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.Users.UpdateProfile(c.Request.Context(), currentUserID(c), services.ProfileUpdate{
		FullName:     req.FullName,
		PhoneNumber:  req.PhoneNumber,
		SchoolName:   req.SchoolName,
		Dormitory:    req.Dormitory,
		DateOfBirth:  req.DateOfBirth,
		AcademicYear: req.AcademicYear,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Profile updated", user)
}

// UpdateAvatarHandler multipart の avatar を保存し、古い画像は削除する
func (h *Handler) UpdateAvatarHandler(c *gin.Context) {
	files, ok := formFiles(c, "avatar")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	me := middleware.CurrentUser(c)

	urls, err := h.uploadFiles(ctx, "avatars", me.ID, files[:1])
	if err != nil {
		respondError(c, err)
		return
	}
	user, err := h.Users.UpdateAvatar(ctx, me.ID, urls[0])
	if err != nil {
		h.deleteObjects(ctx, urls)
		respondError(c, err)
		return
	}
	if me.AvatarURL != "" && me.AvatarURL != urls[0] {
		h.deleteObjects(ctx, []string{me.AvatarURL})
	}
	respond(c, http.StatusOK, "Avatar updated", user)
}

type FCMTokenRequest struct {
	FCMToken string `json:"fcm_token"`
}

// UpdateFCMTokenHandler 空文字でトークン解除
func (h *Handler) UpdateFCMTokenHandler(c *gin.Context) {
	var req FCMTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Users.SetFCMToken(c.Request.Context(), currentUserID(c), req.FCMToken); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "FCM token updated", nil)
}

func (h *Handler) BlockUserHandler(c *gin.Context) {
	if err := h.Users.Block(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "User blocked", nil)
}

func (h *Handler) UnblockUserHandler(c *gin.Context) {
	if c.Param("id") == currentUserID(c) {
		respondError(c, apperrors.Validation("You cannot unblock yourself"))
		return
	}
	if err := h.Users.Unblock(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "User unblocked", nil)
}

func (h *Handler) GetBlockedUsersHandler(c *gin.Context) {
	users, err := h.Users.ListBlocked(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Blocked users retrieved", users)
}
