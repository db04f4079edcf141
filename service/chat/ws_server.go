package chat

import (
	"net/http"

	"github.com/Virstriker/ChatApp/logger"
	"github.com/Virstriker/ChatApp/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type ServerOptions struct {
	Session SessionOptions
	// CheckOrigin decides on the Origin header; nil accepts any origin.
	CheckOrigin func(origin string) bool
}

// Server upgrades HTTP requests into sessions attached to one hub.
type Server struct {
	hub      *Hub
	opts     ServerOptions
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, opts ServerOptions) *Server {
	safe.MustNotNil(hub, "hub")
	s := &Server{hub: hub, opts: opts}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if opts.CheckOrigin == nil {
				return true
			}
			return opts.CheckOrigin(r.Header.Get("Origin"))
		},
	}
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

// HandleWS 升级连接并阻塞直到会话结束
func (s *Server) HandleWS(c *gin.Context) {
	select {
	case <-s.hub.Done():
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	default:
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 非 WebSocket 请求/握手失败, Upgrade 已写回错误响应
		logger.Infof("[HandleWS] upgrade websocket error: %v", err)
		return
	}

	sess := NewSession(ws, s.hub, s.opts.Session)
	logger.Debugf("[HandleWS] conn=%s remote=%s", sess.ID(), c.Request.RemoteAddr)
	sess.Serve()
}
