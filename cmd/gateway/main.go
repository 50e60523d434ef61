// Command gateway runs the HTTP dispatch surface (spec §4.4): synchronous
// and asynchronous synthesis submission, job inspection, health, voice
// enumeration, and the voice-sample catalog. Styled after the teacher's
// cmd/job-queue-system role dispatch, split into its own binary since this
// system runs the gateway and workers as separate deployables.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hungson175/hd-tts/internal/audit"
	"github.com/hungson175/hd-tts/internal/broker"
	"github.com/hungson175/hd-tts/internal/config"
	"github.com/hungson175/hd-tts/internal/credential"
	"github.com/hungson175/hd-tts/internal/engine"
	"github.com/hungson175/hd-tts/internal/gateway"
	"github.com/hungson175/hd-tts/internal/obs"
	"github.com/hungson175/hd-tts/internal/queue"
	"github.com/hungson175/hd-tts/internal/voicesamples"
)

var version = "dev"

func main() {
	var configPath string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	b := broker.New(cfg)
	defer b.Close()

	q := queue.New(b, cfg.Queue.ResultTTL, cfg.Queue.PollEvery)
	creds := credential.New(b)
	samples, err := voicesamples.New(cfg.VoiceSamples.Dir, cfg.VoiceSamples.MaxUnnamed)
	if err != nil {
		logger.Fatal("failed to open voice sample catalog", obs.Err(err))
	}
	if removed, err := samples.RepairIndex(); err != nil {
		logger.Warn("voice sample index repair failed", obs.Err(err))
	} else if removed > 0 {
		logger.Info("removed orphaned voice sample audio files", obs.Int("count", removed))
	}
	auditLog, err := audit.New(cfg.Audit)
	if err != nil {
		logger.Fatal("failed to open audit log", obs.Err(err))
	}
	defer auditLog.Close()

	limiter := gateway.NewRateLimiter(b, cfg.Gateway.RateLimitPerSec)
	gw := gateway.New(cfg.Gateway, creds, q, samples, engine.DefaultPreprocessor{}, limiter, auditLog, logger)

	readyCheck := func(c context.Context) error {
		if !q.Ping(c) {
			return fmt.Errorf("broker unreachable")
		}
		return nil
	}
	metricsSrv := obs.StartHTTPServer(cfg, readyCheck)
	defer func() { _ = metricsSrv.Shutdown(context.Background()) }()

	obs.StartQueueLengthUpdater(context.Background(), q, logger)

	httpSrv := &http.Server{Addr: cfg.Gateway.Addr, Handler: gw.Router()}
	go func() {
		logger.Info("gateway listening", obs.String("addr", cfg.Gateway.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("gateway server error", obs.Err(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("signal received, shutting down", obs.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
