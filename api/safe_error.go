package api

import "github.com/gin-gonic/gin"

// SafeErrorMessage release 模式下不向客户端暴露内部错误详情
func SafeErrorMessage(err error, fallback string) string {
	if err == nil || gin.Mode() == gin.ReleaseMode {
		return fallback
	}
	return fallback + ": " + err.Error()
}
