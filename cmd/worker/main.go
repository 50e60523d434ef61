// Command worker runs a single long-lived dispatch worker (spec §4.5): load
// the synthesis engine once, then loop heartbeat/dequeue/process for
// exactly one quality class. Split out of the teacher's single
// role-dispatching binary since gateway and worker scale independently here.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/hungson175/hd-tts/internal/breaker"
	"github.com/hungson175/hd-tts/internal/broker"
	"github.com/hungson175/hd-tts/internal/config"
	"github.com/hungson175/hd-tts/internal/engine"
	"github.com/hungson175/hd-tts/internal/obs"
	"github.com/hungson175/hd-tts/internal/queue"
	"github.com/hungson175/hd-tts/internal/worker"
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
	if !b.Ping(context.Background()) {
		logger.Fatal("broker unreachable at startup")
	}

	q := queue.New(b, cfg.Queue.ResultTTL, cfg.Queue.PollEvery)

	workerID := cfg.Worker.WorkerID
	if workerID == "" {
		workerID = uuid.NewString()
	}
	quality := queue.Quality(cfg.Worker.Quality)

	synth, err := loadEngine(quality, cfg.Worker.NFESteps)
	if err != nil {
		logger.Fatal("failed to load synthesis engine", obs.Err(err))
	}

	cb := breaker.NewFromConfig(cfg.CircuitBreaker)

	w := worker.New(worker.Config{
		ID:             workerID,
		Quality:        quality,
		NFESteps:       cfg.Worker.NFESteps,
		HeartbeatEvery: cfg.Worker.HeartbeatInterval,
		HeartbeatTTL:   cfg.Worker.HeartbeatTTL,
		DequeueTimeout: cfg.Worker.DequeueTimeout,
	}, q, synth, engine.DefaultPreprocessor{}, cb, logger)

	readyCheck := func(c context.Context) error {
		if !b.Ping(c) {
			return fmt.Errorf("broker unreachable")
		}
		return nil
	}
	metricsSrv := obs.StartHTTPServer(cfg, readyCheck)
	defer func() { _ = metricsSrv.Shutdown(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("worker starting", obs.String("worker_id", workerID), obs.String("quality", string(quality)))
	if err := w.Run(ctx); err != nil {
		logger.Fatal("worker error", obs.Err(err))
	}
}

// loadEngine is the single place this binary constructs the synthesis
// engine (spec §1 "OUT OF SCOPE", §4.5 "a single-instance, expensive,
// blocking load"). No concrete engine ships in this repository; operators
// wire their own engine.Synth implementation here at build time.
func loadEngine(quality queue.Quality, nfeSteps int) (engine.Synth, error) {
	return nil, fmt.Errorf("no synthesis engine wired for quality %q (nfe_steps=%d): see internal/engine.Synth", quality, nfeSteps)
}
