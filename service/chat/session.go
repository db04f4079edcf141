package chat

import (
	"net"
	"sync"
	"time"

	"github.com/Virstriker/ChatApp/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type SessionOptions struct {
	SendQueueSize int
	MaxFrameBytes int
	WriteWait     time.Duration
	PongWait      time.Duration
	PingInterval  time.Duration
}

func (o *SessionOptions) norm() {
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 256
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 8 << 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
}

// Session is one upgraded websocket. It owns the outbound queue and the two
// pumps; the identity bound to it lives in the hub.
type Session struct {
	id      string
	conn    *websocket.Conn
	hub     *Hub
	opts    SessionOptions
	send    chan ServerEvent
	closed  chan struct{}
	once    sync.Once
	metrics *Metrics
}

func NewSession(conn *websocket.Conn, hub *Hub, opts SessionOptions) *Session {
	opts.norm()
	return &Session{
		id:      uuid.NewString(),
		conn:    conn,
		hub:     hub,
		opts:    opts,
		send:    make(chan ServerEvent, opts.SendQueueSize),
		closed:  make(chan struct{}),
		metrics: hub.metrics,
	}
}

func (s *Session) ID() string { return s.id }

// Send queues ev without blocking. A full or closed queue drops it.
func (s *Session) Send(ev ServerEvent) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- ev:
		return true
	default:
		s.metrics.dropped()
		logger.Debugf("[WS] send queue full conn=%s drop event=%s", s.id, ev.Event)
		return false
	}
}

// Close stops the writer, which sends a close frame and releases the socket.
func (s *Session) Close() {
	s.once.Do(func() { close(s.closed) })
}

// Serve runs the session until the peer goes away or the hub stops.
func (s *Session) Serve() {
	if !s.hub.Submit(Event{Kind: KindConnect, Conn: s}) {
		_ = s.conn.Close()
		return
	}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump()
	}()

	s.readPump()
	s.hub.Submit(Event{Kind: KindDisconnect, Conn: s})
	s.Close()
	<-writerDone
}

func (s *Session) readPump() {
	s.conn.SetReadLimit(int64(s.opts.MaxFrameBytes))
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived):
				logger.Debugf("[WS] peer closed conn=%s err=%v", s.id, err)
			case isTimeout(err):
				logger.Infof("[WS] read timeout conn=%s err=%v", s.id, err)
			default:
				logger.Debugf("[WS] read err conn=%s err=%v", s.id, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Debugf("[WS] ParseFrame err conn=%s err=%v sample=%q len=%d", s.id, perr, sample, len(data))
			continue
		}
		if !s.hub.Submit(Event{Kind: KindFrame, Conn: s, Name: frame.Event, Data: frame.Data}) {
			return
		}
	}
}

// writePump is the only goroutine writing to the socket.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.closed:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.opts.WriteWait))
			return

		case ev := <-s.send:
			payload, err := EncodeEvent(ev)
			if err != nil {
				logger.Errorf("[WS] encode conn=%s err=%v", s.id, err)
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debugf("[WS] write err conn=%s err=%v", s.id, err)
				s.Close()
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debugf("[WS] ping err conn=%s err=%v", s.id, err)
				s.Close()
				return
			}
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
