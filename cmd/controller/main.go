// Command controller is the local operator CLI: it discovers WoW client
// processes, injects the capture agent, and serves the resulting packet
// stream over WebSocket/gRPC. Like the team's own CLI tools, it dispatches
// on a plain os.Args switch rather than a flag framework.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/wowcap/capture/internal/config"
	"github.com/wowcap/capture/internal/discover"
	"github.com/wowcap/capture/internal/inject"
	"github.com/wowcap/capture/internal/metrics"
	"github.com/wowcap/capture/internal/stream"
	"github.com/wowcap/capture/pb/capture"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "discover":
		cmdDiscover()
	case "inject":
		cmdInject()
	case "serve":
		cmdServe()
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`wowcap-controller - local packet capture controller

Usage:
  controller discover                 list candidate WoW client processes
  controller inject <pid> <dll_path>  inject the capture agent into pid
  controller serve                    inject into every discovered target and serve the capture stream

Environment:
  WOWCAP_CONFIG_PATH   path to config.yaml (default "config.yaml")
  WOWCAP_ENV_FILE       path to a .env file (default ".env")`)
}

func cmdDiscover() {
	targets, err := discover.Discover()
	if err != nil {
		fmt.Fprintf(os.Stderr, "discover: %v\n", err)
		os.Exit(1)
	}
	if len(targets) == 0 {
		fmt.Println("no WoW client windows found")
		return
	}
	for _, t := range targets {
		fmt.Printf("pid=%d build=%d version=%q title=%q exe=%q\n", t.PID, t.Build, t.VersionName, t.WindowTitle, t.ExePath)
	}
}

func cmdInject() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: controller inject <pid> <dll_path>")
		os.Exit(1)
	}
	var pid uint32
	if _, err := fmt.Sscanf(os.Args[2], "%d", &pid); err != nil {
		fmt.Fprintf(os.Stderr, "invalid pid %q: %v\n", os.Args[2], err)
		os.Exit(1)
	}
	dllPath := os.Args[3]

	if err := inject.Inject(pid, dllPath); err != nil {
		fmt.Fprintf(os.Stderr, "inject: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("injected %s into pid %d\n", dllPath, pid)
}

func cmdServe() {
	cfg := config.Get()

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.Logging.Level))
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broadcaster := stream.New(log, cfg.Stream.SubscriberBuffer, metrics.FanOutDrops.Inc)
	stop := make(chan struct{})
	go broadcaster.Run(stop)
	defer close(stop)

	grpcHandler := stream.NewGRPCServer(broadcaster)
	wsServer := stream.NewWSServer(broadcaster, log)

	httpServer := &http.Server{
		Addr:         cfg.Stream.HTTPAddr,
		Handler:      wsServer.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}
	go func() {
		log.Info("http server listening", "addr", cfg.Stream.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
		}
	}()

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info("metrics server listening", "addr", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", cfg.Stream.GRPCAddr)
	if err != nil {
		log.Error("grpc listen failed", "error", err)
		os.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	capture.RegisterCaptureStreamServer(grpcSrv, grpcHandler)
	go func() {
		log.Info("grpc server listening", "addr", cfg.Stream.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc server failed", "error", err)
		}
	}()

	go runCaptureLoop(ctx, log, cfg, broadcaster, grpcHandler)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
}
