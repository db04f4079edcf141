package main

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/Virstriker/ChatApp/global"
	"github.com/Virstriker/ChatApp/global/config"
	"github.com/Virstriker/ChatApp/logger"
	mid "github.com/Virstriker/ChatApp/middleware"
	midsec "github.com/Virstriker/ChatApp/middleware/security"
	"github.com/Virstriker/ChatApp/module/user"
	"github.com/Virstriker/ChatApp/service/chat"
	"github.com/Virstriker/ChatApp/service/natsx"
	"github.com/Virstriker/ChatApp/service/storage"
	redisx "github.com/Virstriker/ChatApp/service/storage/redis"
	"github.com/Virstriker/ChatApp/tools/errs"
	"github.com/Virstriker/ChatApp/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// app owns every long-lived piece of one node.
type app struct {
	cfg     config.AppConfig
	nodeID  string
	metrics *chat.Metrics

	notifier *chat.Notifier
	hub      *chat.Hub
	ws       *chat.Server
	mirror   *storage.PresenceMirror

	rdb *redis.Client
	nc  *natsx.NatsxClient

	httpSrv *http.Server
	grpcSrv *grpc.Server
	health  *health.Server

	hubCancel, notifyCancel, mirrorCancel context.CancelFunc
	wg                                    sync.WaitGroup
	stopOnce                              sync.Once
	stopErr                               error
}

// newApp connects the optional Redis and NATS observers and builds the
// hub. Nothing runs until start.
func newApp(ctx context.Context, cfg config.AppConfig) (*app, error) {
	a := &app{
		cfg:     cfg,
		nodeID:  strconv.FormatInt(cfg.NodeID, 10),
		metrics: chat.NewMetrics(),
	}

	var observers []chat.Observer
	if cfg.Redis.Addr != "" {
		rdb, err := redisx.Open(ctx, redisx.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
		a.mirror = storage.NewPresenceMirror(rdb, a.nodeID, cfg.Redis.PresenceTTL)
		observers = append(observers, a.mirror)
	}
	if cfg.NATS.URL != "" {
		nc, err := natsx.NewNatsxClient(natsx.NatsxConfig{
			Servers: strings.Split(cfg.NATS.URL, ","),
			Name:    "ppchat-node-" + a.nodeID,
		})
		if err != nil {
			a.closeClients()
			return nil, err
		}
		a.nc = nc
		if err := natsx.RegisterAuditRoutes(nc, cfg.NATS.SubjectPrefix); err != nil {
			a.closeClients()
			return nil, err
		}
		observers = append(observers, natsx.NewAuditTap(natsx.NewNatsxProducer(nc), a.nodeID))
	}

	a.notifier = chat.NewNotifier(cfg.NotifyQueueSize, observers...)
	a.hub = chat.NewHub(chat.HubOptions{
		EventQueueSize:   cfg.EventQueueSize,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		StatusLedgerSize: cfg.StatusLedgerSize,
		Notifier:         a.notifier,
		Metrics:          a.metrics,
	})
	a.ws = chat.NewServer(a.hub, chat.ServerOptions{
		Session: chat.SessionOptions{
			SendQueueSize: cfg.SendQueueSize,
			MaxFrameBytes: cfg.MaxFrameBytes,
			WriteWait:     cfg.WriteWait,
			PongWait:      cfg.PongWait,
			PingInterval:  cfg.PingInterval,
		},
		CheckOrigin: cfg.OriginAllowed,
	})
	return a, nil
}

func (a *app) router() *gin.Engine {
	if a.cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	mgr := mid.NewManager()
	mgr.Add(mid.Origin(a.cfg.OriginAllowed))
	mgr.Add(mid.RequestLog(func(method, path, remote string) {
		logger.Debug("http", zap.String("method", method), zap.String("path", path), zap.String("remote", remote))
	}))
	r.Use(mgr.Use())

	auth := midsec.DefaultOptions([]byte(a.cfg.JWTSecret))
	auth.JWT.TTL = a.cfg.SessionTTL
	user.NewHandler(auth, a.cfg.CookieSecure).Register(r)

	r.GET("/ws", a.ws.HandleWS)
	mid.GET(r, "/healthz", a.healthz, mid.RouteOpt{})
	r.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	return r
}

func (a *app) healthz(c *gin.Context) {
	st, err := a.hub.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, global.Fail(errs.ErrServerInternal.WithDetail("hub stopped")))
		return
	}
	c.JSON(http.StatusOK, global.Success(gin.H{
		"node":          a.nodeID,
		"participants":  st.Participants,
		"connections":   st.Connections,
		"notifyDropped": a.notifier.Dropped(),
	}))
}

// start launches the hub, the notifier, the mirror refresher and the
// listeners. Listen errors are returned before anything is served.
func (a *app) start() error {
	var ctx context.Context
	ctx, a.hubCancel = context.WithCancel(context.Background())
	go a.hub.Run(ctx)
	ctx, a.notifyCancel = context.WithCancel(context.Background())
	go a.notifier.Run(ctx)
	if a.mirror != nil {
		var mctx context.Context
		mctx, a.mirrorCancel = context.WithCancel(context.Background())
		a.wg.Add(1)
		safe.Go("presence-mirror", func() {
			defer a.wg.Done()
			a.mirror.Run(mctx)
		})
	}

	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return errors.Wrapf(err, "listen http %s", a.cfg.HTTPAddr)
	}
	a.httpSrv = &http.Server{Handler: a.router()}
	safe.Go("http", func() {
		if err := a.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
		}
	})

	if a.cfg.GRPCAddr != "" {
		gl, err := net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			return errors.Wrapf(err, "listen grpc %s", a.cfg.GRPCAddr)
		}
		a.grpcSrv = grpc.NewServer()
		a.health = health.NewServer()
		healthpb.RegisterHealthServer(a.grpcSrv, a.health)
		a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		a.health.SetServingStatus("ppchat.Chat", healthpb.HealthCheckResponse_SERVING)
		safe.Go("grpc", func() {
			if err := a.grpcSrv.Serve(gl); err != nil {
				logger.Error("grpc server failed", zap.Error(err))
			}
		})
	}
	return nil
}

// stop tears down in dependency order: listeners, hub (closes every
// connection), notifier (flushes queued notifications), mirror, clients.
func (a *app) stop(ctx context.Context) error {
	a.stopOnce.Do(func() { a.stopErr = a.doStop(ctx) })
	return a.stopErr
}

func (a *app) doStop(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if a.health != nil {
		a.health.Shutdown()
	}
	if a.httpSrv != nil {
		keep(errs.Wrap(a.httpSrv.Shutdown(ctx)))
	}
	if a.grpcSrv != nil {
		a.grpcSrv.GracefulStop()
	}

	if a.hubCancel != nil {
		a.hubCancel()
		select {
		case <-a.hub.Done():
		case <-ctx.Done():
			keep(errors.Wrap(ctx.Err(), "wait hub"))
		}
	}
	if a.notifyCancel != nil {
		a.notifyCancel()
		select {
		case <-a.notifier.Done():
		case <-ctx.Done():
			keep(errors.Wrap(ctx.Err(), "wait notifier"))
		}
	}
	if a.mirrorCancel != nil {
		a.mirrorCancel()
		a.wg.Wait()
	}
	keep(a.closeClients())
	return first
}

func (a *app) closeClients() error {
	var first error
	if a.nc != nil {
		first = errs.WrapMsg(a.nc.Close(), "drain nats")
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil && first == nil {
			first = errs.WrapMsg(err, "close redis", "addr", a.cfg.Redis.Addr)
		}
	}
	return first
}
