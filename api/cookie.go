package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const oauthStateCookie = "spnd_oauth_state"

// likeEscape 与 escapeLikeValue 配套的转义符，MySQL 与 SQLite 均需显式声明 ESCAPE
const likeEscape = "!"

// escapeLikeValue 转义 LIKE 查询中的通配符 % 和 _，防止用户注入改变匹配语义
func escapeLikeValue(s string) string {
	s = strings.ReplaceAll(s, likeEscape, likeEscape+likeEscape)
	s = strings.ReplaceAll(s, "%", likeEscape+"%")
	s = strings.ReplaceAll(s, "_", likeEscape+"_")
	return s
}

// likeContains 构造 "col LIKE ? ESCAPE '!'" 的参数
func likeContains(keyword string) string {
	return "%" + escapeLikeValue(keyword) + "%"
}

// getCookieOptions 根据运行模式返回 Cookie 的安全选项
// release 模式下启用 Secure（仅 HTTPS 传输）
func getCookieOptions() (secure bool, sameSite http.SameSite) {
	return gin.Mode() == gin.ReleaseMode, http.SameSiteLaxMode
}

// setOAuthState 写入 OAuth state，回调时比对防止 CSRF
func setOAuthState(c *gin.Context, state string) {
	secure, sameSite := getCookieOptions()
	c.SetSameSite(sameSite)
	c.SetCookie(oauthStateCookie, state, 600, "/", "", secure, true)
}

// consumeOAuthState 读取并清除 OAuth state，不一致返回 false
func consumeOAuthState(c *gin.Context, state string) bool {
	expected, err := c.Cookie(oauthStateCookie)
	secure, sameSite := getCookieOptions()
	c.SetSameSite(sameSite)
	c.SetCookie(oauthStateCookie, "", -1, "/", "", secure, true)
	return err == nil && expected != "" && expected == state
}
