package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/zerohandoff/zhc-plane/internal/bootstrap"
	"github.com/zerohandoff/zhc-plane/internal/ingress"
)

func main() {
	configPath := flag.String("config", "", "Config file path")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	plane, err := bootstrap.New(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}
	defer plane.Close()

	log := plane.Logger
	log.Info("starting task control plane ingress")

	ing, err := ingress.New(plane.Config.Ingress, plane.Registry, plane.Router, log)
	if err != nil {
		log.Error("failed to start ingress", zap.Error(err))
		os.Exit(1)
	}
	defer ing.Close()

	if err := ing.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("ingress loop exited with error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("ingress stopped cleanly")
}
