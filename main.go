package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Virstriker/ChatApp/global/config"
	"github.com/Virstriker/ChatApp/logger"
	"github.com/Virstriker/ChatApp/tools/ids"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Args[1:], nil)
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger.Init(cfg.LogLevel)
	ids.SetNodeID(cfg.NodeID)

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}
	if err := a.start(); err != nil {
		logger.Error("listen failed", zap.Error(err))
		_ = a.stop(context.Background())
		os.Exit(1)
	}
	logger.Info("ppchat node up",
		zap.Int64("node", cfg.NodeID),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
		zap.Bool("redis", cfg.Redis.Addr != ""),
		zap.Bool("nats", cfg.NATS.URL != ""),
	)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"ppchat": func(ctx context.Context) error {
				logger.Info("graceful shutdown initiated")
				return a.stop(ctx)
			},
		},
	)
	code := <-wait
	logger.Info("exited", zap.Int("code", code))
	logger.Sync()
	os.Exit(code)
}
