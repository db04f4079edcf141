package security

import (
	"strings"

	"github.com/Virstriker/ChatApp/global"
	"github.com/Virstriker/ChatApp/logger"
	"github.com/Virstriker/ChatApp/tools/errs"
	jwt "github.com/Virstriker/ChatApp/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// context key
// 后续模块统一用这个 key 读取当前身份
const (
	PPCtxIdentityKey = "identity" // *jwt.Identity
)

const DefaultCookieName = "ppchat_session"

type Options struct {
	CookieName                string // 默认 "ppchat_session"
	EnableAuthorizationBearer bool   // 默认 true
	JWT                       jwt.Options
}

func DefaultOptions(secret []byte) *Options {
	return &Options{
		CookieName:                DefaultCookieName,
		EnableAuthorizationBearer: true,
		JWT:                       jwt.DefaultOptions(secret),
	}
}

// TokenFrom reads the session token from the cookie, then from
// "Authorization: Bearer xxx".
func TokenFrom(c *gin.Context, opts *Options) string {
	if v, err := c.Cookie(opts.CookieName); err == nil && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if !opts.EnableAuthorizationBearer {
		return ""
	}
	if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
	}
	return ""
}

func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		panic("security.Middleware: options required")
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	return func(c *gin.Context) {
		token := TokenFrom(c, opts)
		if token == "" {
			abort(c, errs.ErrTokenMissing.Wrap())
			return
		}
		id, err := jwt.Verify(opts.JWT, token)
		if err != nil {
			// 只记录 token 摘要
			logger.Debug("[auth] verify failed",
				zap.String("path", c.Request.URL.Path),
				zap.String("token", jwt.HashToken(token)),
				zap.Error(err))
			abort(c, errs.ErrTokenInvalid.WrapMsg("verify failed"))
			return
		}
		c.Set(PPCtxIdentityKey, id)
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(global.HTTPStatus(err), global.FailErr(err))
}

// IdentityFrom returns the identity the middleware stored, if any.
func IdentityFrom(c *gin.Context) (*jwt.Identity, bool) {
	v, ok := c.Get(PPCtxIdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*jwt.Identity)
	return id, ok
}
