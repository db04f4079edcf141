package middleware

import (
	midsec "github.com/Virstriker/ChatApp/middleware/security"

	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	IsAuth bool
	Auth   *midsec.Options // required when IsAuth
}

func handlers(handler gin.HandlerFunc, opt RouteOpt) []gin.HandlerFunc {
	if opt.IsAuth {
		return []gin.HandlerFunc{midsec.Middleware(opt.Auth), handler}
	}
	return []gin.HandlerFunc{handler}
}

// 封装 POST
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.POST(path, handlers(handler, opt)...)
}

// 封装 GET
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.GET(path, handlers(handler, opt)...)
}
