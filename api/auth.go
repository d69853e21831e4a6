package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"spnd/middleware"
	"spnd/models"
	"spnd/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	db     *gorm.DB
	jwt    *middleware.JWT
	google *service.GoogleClient
}

// NewAuthHandler 创建认证处理器，google 为 nil 时 Google 登录不可用
func NewAuthHandler(db *gorm.DB, jwt *middleware.JWT, google *service.GoogleClient) *AuthHandler {
	return &AuthHandler{db: db, jwt: jwt, google: google}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=5,max=52" example:"testuser"`
	Password string `json:"password" binding:"required,min=6,max=72" example:"password123"`
	Email    string `json:"email" binding:"required,email" example:"test@example.com"`
}

// LoginRequest 登录请求（支持用户名或邮箱）
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"testuser"` // 可为用户名或邮箱
	Password string `json:"password" binding:"required" example:"password123"`
}

// GoogleLoginRequest Google ID Token 登录请求
type GoogleLoginRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token    string      `json:"token"`
	UserInfo models.User `json:"user_info"`
}

// Register 用户注册
// @Summary 用户注册
// @Description 使用用户名、密码和邮箱创建账号，用户名或邮箱重复返回 409
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "注册信息"
// @Success 200 {object} Response{data=models.User} "注册成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 409 {object} Response "用户名或邮箱已存在"
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	db := h.db.WithContext(c.Request.Context())
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		Fail(c, &service.DuplicateKeyError{Field: "username"})
		return
	}
	if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
		Fail(c, &service.DuplicateKeyError{Field: "email"})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		InternalError(c, "密码加密失败")
		return
	}

	user := models.User{
		Username: username,
		Password: string(hashedPassword),
		Email:    &email,
		AuthType: models.AuthTypeLocal,
	}
	if err := db.Create(&user).Error; err != nil {
		if dup := service.TranslateDuplicate(err); dup != nil {
			Fail(c, dup)
			return
		}
		InternalError(c, SafeErrorMessage(err, "创建用户失败"))
		return
	}

	SuccessWithMessage(c, "注册成功", user)
}

// Login 用户登录
// @Summary 用户登录
// @Description 使用用户名或邮箱加密码登录，获取 JWT token
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录信息"
// @Success 200 {object} Response{data=LoginResponse} "登录成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "用户名或密码错误"
// @Failure 429 {object} Response "尝试过于频繁"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	login := strings.TrimSpace(req.Username)
	var user models.User
	if err := h.db.WithContext(c.Request.Context()).
		Where("username = ? OR email = ?", login, strings.ToLower(login)).
		First(&user).Error; err != nil {
		Unauthorized(c, "用户名或密码错误")
		return
	}

	if !user.HasPassword() {
		Unauthorized(c, "该账号使用 Google 登录，请通过 Google 登录")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		Unauthorized(c, "用户名或密码错误")
		return
	}

	h.respondToken(c, &user)
}

// GoogleLogin 使用 Google ID Token 登录
// @Summary Google 登录
// @Description 校验 Google ID Token，首次登录自动创建账号；已存在相同邮箱的账号会被关联
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body GoogleLoginRequest true "ID Token"
// @Success 200 {object} Response{data=LoginResponse} "登录成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "ID Token 无效"
// @Failure 404 {object} Response "Google 登录未启用"
// @Router /api/v1/auth/google [post]
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	if !h.google.Enabled() {
		NotFound(c, "Google 登录未启用")
		return
	}
	var req GoogleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	info, err := h.google.VerifyIDToken(c.Request.Context(), req.IDToken)
	if err != nil {
		Unauthorized(c, SafeErrorMessage(err, "Google 身份校验失败"))
		return
	}
	user, err := h.signInWithGoogle(c.Request.Context(), info)
	if err != nil {
		Fail(c, err)
		return
	}
	h.respondToken(c, user)
}

// GoogleAuthURL 获取 Google 授权地址
// @Summary 获取 Google 授权地址
// @Description 返回授权页面 URL，并写入 state Cookie 供回调校验
// @Tags 认证
// @Produce json
// @Success 200 {object} Response "获取成功，data.url 为授权地址"
// @Failure 404 {object} Response "Google 登录未启用"
// @Router /api/v1/auth/google/url [get]
func (h *AuthHandler) GoogleAuthURL(c *gin.Context) {
	if !h.google.Enabled() {
		NotFound(c, "Google 登录未启用")
		return
	}
	state := uuid.NewString()
	setOAuthState(c, state)
	Success(c, gin.H{"url": h.google.BuildAuthURL(state)})
}

// GoogleCallback Google 授权回调
// @Summary Google 授权回调
// @Description 使用授权码换取令牌并获取用户信息，完成登录
// @Tags 认证
// @Produce json
// @Param code query string true "授权码"
// @Param state query string true "state"
// @Success 200 {object} Response{data=LoginResponse} "登录成功"
// @Failure 400 {object} Response "state 校验失败"
// @Failure 401 {object} Response "Google 授权失败"
// @Router /api/v1/auth/google/callback [get]
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if !h.google.Enabled() {
		NotFound(c, "Google 登录未启用")
		return
	}
	code := c.Query("code")
	if code == "" {
		BadRequest(c, "缺少授权码")
		return
	}
	if !consumeOAuthState(c, c.Query("state")) {
		BadRequest(c, "state 校验失败，请重新发起登录")
		return
	}

	ctx := c.Request.Context()
	token, err := h.google.ExchangeToken(ctx, code)
	if err != nil {
		Unauthorized(c, SafeErrorMessage(err, "Google 授权失败"))
		return
	}
	info, err := h.google.GetUserInfo(ctx, token)
	if err != nil {
		Unauthorized(c, SafeErrorMessage(err, "获取 Google 用户信息失败"))
		return
	}
	user, err := h.signInWithGoogle(ctx, info)
	if err != nil {
		Fail(c, err)
		return
	}
	h.respondToken(c, user)
}

// signInWithGoogle 按 google_id 查找用户；未找到时关联同邮箱账号或创建新账号
func (h *AuthHandler) signInWithGoogle(ctx context.Context, info *service.GoogleUserInfo) (*models.User, error) {
	var user models.User
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("google_id = ?", info.Sub).First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		email := strings.ToLower(strings.TrimSpace(info.Email))
		if email != "" && info.EmailVerified {
			err = tx.Where("email = ?", email).First(&user).Error
			if err == nil {
				user.GoogleID = &info.Sub
				return tx.Model(&user).Update("google_id", info.Sub).Error
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		username, err := availableUsername(tx, info)
		if err != nil {
			return err
		}
		user = models.User{
			Username: username,
			GoogleID: &info.Sub,
			AuthType: models.AuthTypeGoogle,
		}
		if email != "" && info.EmailVerified {
			user.Email = &email
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		if dup := service.TranslateDuplicate(err); dup != nil {
			return nil, dup
		}
		return nil, &service.StoreError{Op: "Google 登录", Err: err}
	}
	return &user, nil
}

var usernameUnsafe = regexp.MustCompile(`[^\p{L}\p{N}_.-]+`)

// availableUsername 由显示名生成用户名，冲突时追加 Google ID 后缀
func availableUsername(tx *gorm.DB, info *service.GoogleUserInfo) (string, error) {
	base := usernameUnsafe.ReplaceAllString(strings.TrimSpace(info.Name), "_")
	if base == "" && info.Email != "" {
		base = usernameUnsafe.ReplaceAllString(strings.SplitN(info.Email, "@", 2)[0], "_")
	}
	if base == "" {
		base = "google_user"
	}
	base = truncateRunes(base, 40)

	suffix := info.Sub
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	candidates := []string{base, base + "_" + suffix, base + "_" + uuid.NewString()[:8]}
	for _, name := range candidates {
		if len([]rune(name)) < 5 {
			continue
		}
		var count int64
		if err := tx.Model(&models.User{}).Unscoped().Where("username = ?", name).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return name, nil
		}
	}
	return "", fmt.Errorf("无法为 %s 生成可用用户名", info.Sub)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

func (h *AuthHandler) respondToken(c *gin.Context, user *models.User) {
	token, err := h.jwt.GenerateToken(user.ID, user.Username, 0)
	if err != nil {
		InternalError(c, "生成 token 失败")
		return
	}
	Success(c, LoginResponse{Token: token, UserInfo: *user})
}

// GetProfile 获取用户信息
// @Summary 获取当前用户信息
// @Description 获取当前登录用户的详细信息（含余额）
// @Tags 认证
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=models.User} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/auth/profile [get]
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var user models.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		NotFound(c, "用户不存在")
		return
	}
	Success(c, user)
}

// ChangePasswordRequest 修改密码请求，Google 账号首次设置密码时 old_password 可为空
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" example:"oldpassword123"`
	NewPassword string `json:"new_password" binding:"required,min=6,max=72" example:"newpassword123"`
}

// ChangePassword 修改密码
// @Summary 修改密码
// @Description 修改当前用户密码
// @Tags 认证
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "密码信息"
// @Success 200 {object} Response "修改成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "原密码错误"
// @Router /api/v1/auth/password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	db := h.db.WithContext(c.Request.Context())
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		NotFound(c, "用户不存在")
		return
	}

	if user.HasPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.OldPassword)); err != nil {
			Unauthorized(c, "原密码错误")
			return
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		InternalError(c, "密码加密失败")
		return
	}
	if err := db.Model(&user).Update("password", string(hashedPassword)).Error; err != nil {
		InternalError(c, "更新密码失败")
		return
	}

	c.JSON(http.StatusOK, Response{Code: 200, Message: "密码修改成功"})
}
