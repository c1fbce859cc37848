package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-drive-bridge/internal/bridge"
	"github.com/kstaniek/go-drive-bridge/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func main() { os.Exit(run(os.Args[1:])) }

func run(args []string) int {
	cfg, showVersion, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 2
	}
	if showVersion {
		fmt.Printf("drive-bridge %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	codec, err := cfg.codec()
	if err != nil { // validate already checked this
		l.Error("codec_init_error", "error", err)
		return 2
	}
	l.Info("layout_config", "driver_base", fmt.Sprintf("0x%X", codec.DriverBase()), "motor_base", fmt.Sprintf("0x%X", codec.MotorBase()))
	br := bridge.New(codec)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	startMetricsLogger(gctx, cfg.logMetricsEvery, l, g)

	sink, cleanup, err := initBackend(gctx, cfg, br, l, g)
	if err != nil {
		l.Error("backend_init_error", "error", err)
		stop()
		_ = g.Wait()
		return 1
	}
	br.Attach(sink)
	metrics.SetReadinessFunc(func() bool { return gctx.Err() == nil })

	if cfg.httpAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srv, addr, err := metrics.StartHTTP(cfg.httpAddr, br.Mount)
		if err != nil {
			l.Error("http_start_error", "error", err)
			stop()
			cleanup()
			_ = g.Wait()
			return 1
		}
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http shutdown: %w", err)
			}
			return nil
		})
		if cfg.mdnsEnable {
			startAdvertising(gctx, cfg, addr, l)
		}
	}

	<-gctx.Done()
	l.Info("shutdown", "cause", context.Cause(gctx))
	br.Attach(nil)
	cleanup()
	if err := g.Wait(); err != nil {
		l.Error("run_error", "error", err)
		return 1
	}
	return 0
}

func startAdvertising(ctx context.Context, cfg *appConfig, addr net.Addr, l *slog.Logger) {
	port := 0
	if ta, ok := addr.(*net.TCPAddr); ok {
		port = ta.Port
	}
	cleanupMDNS, err := startMDNS(ctx, cfg, port)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
		return
	}
	l.Info("mdns_started", "service", mdnsServiceType, "name", mdnsInstance(cfg), "port", port)
	go func() { <-ctx.Done(); cleanupMDNS() }()
}
