package user

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Virstriker/ChatApp/global"
	"github.com/Virstriker/ChatApp/logger"
	mid "github.com/Virstriker/ChatApp/middleware"
	midsec "github.com/Virstriker/ChatApp/middleware/security"
	"github.com/Virstriker/ChatApp/tools/errs"
	"github.com/Virstriker/ChatApp/tools/ids"
	jwt "github.com/Virstriker/ChatApp/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxNameRunes = 64

type loginReq struct {
	Username string `form:"username" json:"username"`
}

// Session is what /login and /session hand back to the browser client.
type Session struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Token       string `json:"token,omitempty"`
	ExpiresAt   int64  `json:"expiresAt,omitempty"` // unix ms
}

// Handler issues and inspects signed session cookies. No credential
// store is involved: any non-empty username gets a fresh id.
type Handler struct {
	Auth   *midsec.Options
	Secure bool
	IDs    *ids.Generator
}

func NewHandler(auth *midsec.Options, secure bool) *Handler {
	return &Handler{Auth: auth, Secure: secure, IDs: ids.Default()}
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bad login body"))
		return
	}
	name := strings.TrimSpace(req.Username)
	if name == "" {
		fail(c, errs.ErrArgs.WrapMsg("username required"))
		return
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		name = string([]rune(name)[:maxNameRunes])
	}

	id := jwt.Identity{ID: h.IDs.NextString(), DisplayName: name}
	token, exp, err := jwt.Generate(h.Auth.JWT, id)
	if err != nil {
		err = errs.WrapMsg(err, "sign session", "id", id.ID)
		logger.Error("login failed", zap.Error(err))
		fail(c, err)
		return
	}
	h.setCookie(c, token, int(time.Until(exp).Seconds()))
	logger.Info("login", zap.String("id", id.ID), zap.String("name", name))

	c.JSON(http.StatusOK, global.Success(Session{
		ID:          id.ID,
		DisplayName: name,
		Token:       token,
		ExpiresAt:   exp.UnixMilli(),
	}))
}

// Session must sit behind midsec.Middleware.
func (h *Handler) Session(c *gin.Context) {
	id, ok := midsec.IdentityFrom(c)
	if !ok {
		fail(c, errs.ErrTokenMissing.Wrap())
		return
	}
	c.JSON(http.StatusOK, global.Success(Session{
		ID:          id.ID,
		DisplayName: id.DisplayName,
		ExpiresAt:   id.ExpiresAt.UnixMilli(),
	}))
}

func (h *Handler) Logout(c *gin.Context) {
	h.setCookie(c, "", -1)
	c.JSON(http.StatusOK, global.Success(nil))
}

func fail(c *gin.Context, err error) {
	c.JSON(global.HTTPStatus(err), global.FailErr(err))
}

func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.Auth.CookieName, value, maxAge, "/", "", h.Secure, true)
}

// Register mounts /login, /session and /logout.
func (h *Handler) Register(r gin.IRoutes) {
	mid.POST(r, "/login", h.Login, mid.RouteOpt{})
	mid.GET(r, "/session", h.Session, mid.RouteOpt{IsAuth: true, Auth: h.Auth})
	mid.POST(r, "/logout", h.Logout, mid.RouteOpt{})
}
