// Package handler maps HTTP requests onto the account service and shapes
// uniform response envelopes.
package handler

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/streamhive/account-service/internal/config"
	"github.com/streamhive/account-service/internal/domain"
	"github.com/streamhive/account-service/internal/http/middleware"
	"github.com/streamhive/account-service/internal/media"
	"github.com/streamhive/account-service/internal/service"
)

// AccountHandler serves the /api/v1/users routes.
type AccountHandler struct {
	accounts *service.AccountService
	uploader media.Uploader
	cfg      config.Config
}

// NewAccountHandler creates the handler set.
func NewAccountHandler(accounts *service.AccountService, uploader media.Uploader, cfg config.Config) *AccountHandler {
	return &AccountHandler{accounts: accounts, uploader: uploader, cfg: cfg}
}

// Register handles multipart registration: plain fields plus a required
// avatar file and an optional cover image.
func (h *AccountHandler) Register(c *gin.Context) {
	avatarFile, err := c.FormFile("avatar")
	if err != nil {
		respondError(c, domain.E(domain.KindValidation, "Avatar file is required."))
		return
	}
	avatar, err := h.uploadFormFile(c, avatarFile)
	if err != nil {
		respondError(c, domain.Wrap(domain.KindInternal, "Could not store avatar.", err))
		return
	}

	input := service.RegisterInput{
		Username: c.PostForm("username"),
		Email:    c.PostForm("email"),
		FullName: c.PostForm("fullName"),
		Password: c.PostForm("password"),
		Avatar:   avatar,
	}

	if coverFile, err := c.FormFile("coverImage"); err == nil {
		cover, err := h.uploadFormFile(c, coverFile)
		if err != nil {
			respondError(c, domain.Wrap(domain.KindInternal, "Could not store cover image.", err))
			return
		}
		input.CoverImage = &cover
	}

	view, err := h.accounts.Register(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, view, "User registered successfully.")
}

// Login authenticates by username or email and sets both token cookies.
func (h *AccountHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.E(domain.KindValidation, "Invalid login request."))
		return
	}

	result, err := h.accounts.Login(c.Request.Context(), service.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.setAuthCookies(c, result)
	respond(c, http.StatusOK, result, "Logged in successfully.")
}

// Logout clears the refresh slot and expires both cookies.
func (h *AccountHandler) Logout(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		respondError(c, domain.E(domain.KindUnauthorized, "Not authenticated."))
		return
	}

	if err := h.accounts.Logout(c.Request.Context(), identity.UserID); err != nil {
		respondError(c, err)
		return
	}

	h.clearAuthCookies(c)
	respond(c, http.StatusOK, nil, "Logged out successfully.")
}

// Refresh exchanges a refresh token for a new pair. The cookie takes
// precedence; a refreshToken body field is the fallback transport.
func (h *AccountHandler) Refresh(c *gin.Context) {
	incoming := h.refreshTokenFromRequest(c)

	result, err := h.accounts.Refresh(c.Request.Context(), incoming)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setAuthCookies(c, result)
	respond(c, http.StatusOK, result, "Session refreshed.")
}

// ChangePassword verifies the old password before persisting a new hash.
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		respondError(c, domain.E(domain.KindUnauthorized, "Not authenticated."))
		return
	}

	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.E(domain.KindValidation, "Invalid password change request."))
		return
	}

	if err := h.accounts.ChangePassword(c.Request.Context(), identity.UserID, req.OldPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, nil, "Password changed successfully.")
}

// CurrentUser returns the authoritative user record rather than the
// token's denormalized claims.
func (h *AccountHandler) CurrentUser(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		respondError(c, domain.E(domain.KindUnauthorized, "Not authenticated."))
		return
	}

	view, err := h.accounts.CurrentUser(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, view, "Current user fetched.")
}

// UpdateAccount changes fullName and email.
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		respondError(c, domain.E(domain.KindUnauthorized, "Not authenticated."))
		return
	}

	var req struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.E(domain.KindValidation, "Invalid account update request."))
		return
	}

	view, err := h.accounts.UpdateAccount(c.Request.Context(), identity.UserID, req.FullName, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, view, "Account updated.")
}

// UpdateAvatar uploads a replacement avatar and persists its URL.
func (h *AccountHandler) UpdateAvatar(c *gin.Context) {
	h.updateImage(c, "avatar", func(c *gin.Context, userID int64, res media.Resource) (service.UserView, error) {
		return h.accounts.UpdateAvatar(c.Request.Context(), userID, res)
	})
}

// UpdateCoverImage uploads a replacement cover image.
func (h *AccountHandler) UpdateCoverImage(c *gin.Context) {
	h.updateImage(c, "coverImage", func(c *gin.Context, userID int64, res media.Resource) (service.UserView, error) {
		return h.accounts.UpdateCoverImage(c.Request.Context(), userID, res)
	})
}

func (h *AccountHandler) updateImage(c *gin.Context, field string, apply func(*gin.Context, int64, media.Resource) (service.UserView, error)) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		respondError(c, domain.E(domain.KindUnauthorized, "Not authenticated."))
		return
	}

	file, err := c.FormFile(field)
	if err != nil {
		respondError(c, domain.E(domain.KindValidation, "Image file is required."))
		return
	}
	resource, err := h.uploadFormFile(c, file)
	if err != nil {
		respondError(c, domain.Wrap(domain.KindInternal, "Could not store image.", err))
		return
	}

	view, err := apply(c, identity.UserID, resource)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, view, "Image updated.")
}

// ChannelProfile returns the aggregated channel page for a username.
func (h *AccountHandler) ChannelProfile(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		respondError(c, domain.E(domain.KindUnauthorized, "Not authenticated."))
		return
	}

	profile, err := h.accounts.ChannelProfile(c.Request.Context(), c.Param("username"), identity.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, profile, "Channel profile fetched.")
}

// WatchHistory lists the caller's watched videos.
func (h *AccountHandler) WatchHistory(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		respondError(c, domain.E(domain.KindUnauthorized, "Not authenticated."))
		return
	}

	history, err := h.accounts.WatchHistory(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, history, "Watch history fetched.")
}

func (h *AccountHandler) uploadFormFile(c *gin.Context, header *multipart.FileHeader) (media.Resource, error) {
	file, err := header.Open()
	if err != nil {
		return media.Resource{}, err
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return h.uploader.Upload(c.Request.Context(), header.Filename, contentType, file)
}

func (h *AccountHandler) refreshTokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(middleware.RefreshTokenCookie); err == nil && cookie != "" {
		return cookie
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

func (h *AccountHandler) setAuthCookies(c *gin.Context, result service.AuthResult) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, result.AccessToken, int(h.cfg.AccessTokenExpiry.Seconds()), "/", "", true, true)
	c.SetCookie(middleware.RefreshTokenCookie, result.RefreshToken, int(h.cfg.RefreshTokenExpiry.Seconds()), "/", "", true, true)
}

func (h *AccountHandler) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", true, true)
	c.SetCookie(middleware.RefreshTokenCookie, "", -1, "/", "", true, true)
}

func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{"success": true, "data": data, "message": message})
}

// respondError maps the error taxonomy to stable statuses and codes. No
// failure ever carries credential material.
func respondError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status, code := http.StatusInternalServerError, "internal_error"
	switch kind {
	case domain.KindValidation:
		status, code = http.StatusBadRequest, "validation_error"
	case domain.KindConflict:
		status, code = http.StatusConflict, "conflict"
	case domain.KindUnauthorized:
		status, code = http.StatusUnauthorized, "unauthorized"
	case domain.KindNotFound:
		status, code = http.StatusNotFound, "not_found"
	}

	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
	}

	c.JSON(status, gin.H{"success": false, "error": code, "message": domain.MessageOf(err)})
}
