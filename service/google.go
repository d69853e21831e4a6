package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"spnd/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

// GoogleEndpoints Google OAuth 接口地址
type GoogleEndpoints struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// DefaultGoogleEndpoints Google 官方接口地址
var DefaultGoogleEndpoints = GoogleEndpoints{
	AuthURL:     google.Endpoint.AuthURL,
	TokenURL:    google.Endpoint.TokenURL,
	UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
}

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// GoogleUserInfo Google 用户信息
type GoogleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleClient Google OAuth 客户端
// 授权码流程使用 oauth2.Config，ID Token 使用 Google 公钥在本地校验
type GoogleClient struct {
	cfg         config.GoogleConfig
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client

	validatorOnce sync.Once
	validator     *idtoken.Validator
	validatorErr  error
}

// NewGoogleClient 创建 Google OAuth 客户端
func NewGoogleClient(cfg config.GoogleConfig, redirectURI string) *GoogleClient {
	g := &GoogleClient{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "email", "profile"},
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	g.setEndpoints(DefaultGoogleEndpoints)
	return g
}

// WithEndpoints 替换接口地址与 HTTP 客户端（代理或测试环境）
// client 同时用于换取令牌、读取用户信息和下载 ID Token 公钥
func (g *GoogleClient) WithEndpoints(e GoogleEndpoints, client *http.Client) *GoogleClient {
	g.setEndpoints(e)
	if client != nil {
		g.httpClient = client
	}
	return g
}

func (g *GoogleClient) setEndpoints(e GoogleEndpoints) {
	g.oauth.Endpoint = oauth2.Endpoint{
		AuthURL:   e.AuthURL,
		TokenURL:  e.TokenURL,
		AuthStyle: google.Endpoint.AuthStyle,
	}
	g.userInfoURL = e.UserInfoURL
}

// Enabled 是否已启用并配置 client_id
func (g *GoogleClient) Enabled() bool {
	return g != nil && g.cfg.Enabled && g.cfg.ClientID != ""
}

// BuildAuthURL 构建 Google 授权页面 URL
func (g *GoogleClient) BuildAuthURL(state string) string {
	if state == "" {
		state = "STATE"
	}
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (g *GoogleClient) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

// ExchangeToken 使用授权码换取令牌
func (g *GoogleClient) ExchangeToken(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := g.oauth.Exchange(g.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("换取 Google 令牌失败: %w", err)
	}
	return token, nil
}

// GetUserInfo 使用令牌获取用户信息
func (g *GoogleClient) GetUserInfo(ctx context.Context, token *oauth2.Token) (*GoogleUserInfo, error) {
	ctx = g.clientContext(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	resp, err := g.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 Google 服务器失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Google 返回错误(%d): %s", resp.StatusCode, data)
	}
	var info GoogleUserInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if info.Sub == "" {
		return nil, errors.New("Google 返回的用户信息中无 sub")
	}
	return &info, nil
}

// VerifyIDToken 校验 ID Token 的签名、aud（本应用 client_id）、签发方与有效期
func (g *GoogleClient) VerifyIDToken(ctx context.Context, idToken string) (*GoogleUserInfo, error) {
	if idToken == "" {
		return nil, errors.New("id_token 不能为空")
	}
	g.validatorOnce.Do(func() {
		g.validator, g.validatorErr = idtoken.NewValidator(ctx, option.WithHTTPClient(g.httpClient))
	})
	if g.validatorErr != nil {
		return nil, fmt.Errorf("初始化 ID Token 校验失败: %w", g.validatorErr)
	}

	payload, err := g.validator.Validate(ctx, idToken, g.cfg.ClientID)
	if err != nil {
		return nil, fmt.Errorf("id_token 无效: %w", err)
	}
	if !googleIssuers[payload.Issuer] {
		return nil, errors.New("id_token 签发方无效")
	}
	if payload.Subject == "" {
		return nil, errors.New("id_token 中无 sub")
	}

	info := &GoogleUserInfo{Sub: payload.Subject}
	info.Email, _ = payload.Claims["email"].(string)
	info.Name, _ = payload.Claims["name"].(string)
	info.Picture, _ = payload.Claims["picture"].(string)
	switch v := payload.Claims["email_verified"].(type) {
	case bool:
		info.EmailVerified = v
	case string:
		info.EmailVerified = v == "true"
	}
	return info, nil
}
