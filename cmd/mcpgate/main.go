package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpgate/mcpgate/internal/bridge"
	"github.com/mcpgate/mcpgate/internal/config"
	"github.com/mcpgate/mcpgate/internal/engine"
	"github.com/mcpgate/mcpgate/internal/logx"
	"github.com/mcpgate/mcpgate/internal/metrics"
	"github.com/mcpgate/mcpgate/internal/server"
	"github.com/mcpgate/mcpgate/internal/serverstate"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.Config
	cfg.BindFlags()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "mcpgate version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("mcpgate version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	if err := cfg.Finalize(); err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid configuration")
	}
	logx.Configure(cfg.LogLevel)
	if cfg.EngineCommand == "" {
		logx.Log.Fatal().Msg("no engine command configured; set --engine-cmd or --engine-config")
	}

	metrics.Register(prometheus.DefaultRegisterer)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	var store serverstate.Store
	if cfg.RedisAddr != "" {
		s, err := serverstate.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			logx.Log.Warn().Err(err).Msg("redis state store unavailable; continuing without")
		} else {
			store = s
		}
	}

	notifier := engine.NewNotifier()
	sup := engine.NewSupervisor(engine.Options{
		Command:           cfg.EngineCommand,
		Args:              cfg.EngineArgs,
		Env:               cfg.EngineEnv,
		Dir:               cfg.EngineDir,
		AutoInitialize:    cfg.AutoInitialize,
		InitializeTimeout: cfg.InitializeTimeout,
		ClientName:        "mcpgate",
		ClientVersion:     version,
		Notify: func(m json.RawMessage) {
			metrics.RecordNotification()
			notifier.Publish(m)
		},
		OnState: func(st engine.State, sess *engine.Session) {
			metrics.SetEngineUp(st == engine.StateReady)
			if st == engine.StateStarting {
				metrics.RecordEngineStart()
			}
			snap := serverstate.State{Status: string(st)}
			if sess != nil {
				snap.Generation = sess.Generation
				snap.PID = sess.PID()
				snap.StartedAt = sess.StartedAt()
			}
			serverstate.Set(snap)
			if store != nil {
				store.Store(snap)
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	br := bridge.New(sup, cfg.RequestTimeout)
	handler := server.New(br, sup, notifier, cfg)
	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler}

	go func() {
		if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logx.Log.Error().Err(err).Msg("engine supervisor exited")
		}
	}()

	if cfg.MetricsPort != cfg.Port {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.MetricsPort), mux); err != nil {
				logx.Log.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logx.Log.Warn().Msg("termination requested; draining")
		serverstate.StartDrain()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		cancel()
	}()

	logx.Log.Info().Int("port", cfg.Port).Str("engine", cfg.EngineCommand).Msg("mcpgate starting")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logx.Log.Fatal().Err(err).Msg("http server failed")
	}
}
