package natsx

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsxRoute 路由配置（按 Biz 维度注册）
type NatsxRoute struct {
	Biz     string
	Subject string
}

// NatsxConfig 客户端配置
type NatsxConfig struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NatsxClient 统一客户端, core publish only
type NatsxClient struct {
	cfg NatsxConfig
	nc  *nats.Conn

	mu     sync.RWMutex
	routes map[string]NatsxRoute // biz -> route
}

// NewNatsxClient 连接 NATS
func NewNatsxClient(cfg NatsxConfig) (*NatsxClient, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NatsxClient{
		cfg:    cfg,
		nc:     nc,
		routes: make(map[string]NatsxRoute),
	}, nil
}

// Close 优雅关闭, flushes pending publishes
func (c *NatsxClient) Close() error {
	if c.nc != nil {
		return c.nc.Drain()
	}
	return nil
}

// RegisterRoute 注册 Biz 路由
func (c *NatsxClient) RegisterRoute(r NatsxRoute) error {
	if r.Biz == "" || r.Subject == "" {
		return errors.New("invalid route")
	}
	c.mu.Lock()
	if c.routes == nil {
		c.routes = make(map[string]NatsxRoute)
	}
	c.routes[r.Biz] = r
	c.mu.Unlock()
	return nil
}

// route 查询已注册路由
func (c *NatsxClient) route(biz string) (NatsxRoute, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.routes[biz]
	return r, ok
}

func (c *NatsxClient) sendCore(subject string, data []byte, hdr map[string]string) error {
	if c.nc == nil {
		return errors.New("nats not connected")
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}
	if err := c.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}
