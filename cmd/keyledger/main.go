// Command keyledger serves the product key ledger API.
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keyledger/internal/api"
	"keyledger/internal/core"
	"keyledger/internal/logging"
)

const shutdownTimeout = 5 * time.Second

var exitFunc = os.Exit

type config struct {
	addr      string
	logLevel  string
	metrics   string
	traceFile string
}

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keyledger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cfg config
	fs.StringVar(&cfg.addr, "addr", envOr("KEYLEDGER_HTTP_ADDR", ":8080"), "listen address")
	fs.StringVar(&cfg.logLevel, "log-level", envOr("KEYLEDGER_LOG_LEVEL", "info"), "minimum log level")
	fs.StringVar(&cfg.metrics, "metrics", "prometheus", "operation metrics sink: prometheus|expvar")
	fs.StringVar(&cfg.traceFile, "trace-file", "", "append operation spans as JSON lines to this file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, stdout)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "keyledger: %v\n", err)
		return 1
	}
	defer app.close()

	if err := app.serve(ctx, cfg.addr); err != nil {
		app.log.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

type application struct {
	handler http.Handler
	log     *logging.Logger
	closers []func() error
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
}

// build wires the logger, store, metrics and HTTP routes.
func build(ctx context.Context, cfg config, stdout io.Writer) (*application, error) {
	log, err := logging.New().FromWriter(stdout).FromPath(os.Getenv("KEYLEDGER_LOG_FILE")).WithLevel(cfg.logLevel).Make()
	if err != nil {
		return nil, err
	}
	app := &application{log: log, closers: []func() error{log.Close}}
	fail := func(err error) (*application, error) {
		app.close()
		return nil, err
	}

	opts := []core.ServiceOption{core.WithLogger(log)}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	switch cfg.metrics {
	case "prometheus":
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return fail(err)
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
	case "expvar":
		opts = append(opts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")))
	default:
		return fail(fmt.Errorf("unknown metrics sink %q", cfg.metrics))
	}
	if cfg.traceFile != "" {
		f, err := os.OpenFile(cfg.traceFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o664)
		if err != nil {
			return fail(err)
		}
		app.closers = append(app.closers, f.Close)
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}

	svc, closeStore, err := core.OpenService(ctx, opts...)
	if err != nil {
		return fail(fmt.Errorf("open store: %w", err))
	}
	app.closers = append(app.closers, closeStore)

	srv, err := api.NewServer(svc, api.ConfigFromEnv(), log)
	if err != nil {
		return fail(err)
	}
	router := srv.Router()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.Handle("/debug/vars", expvar.Handler()).Methods(http.MethodGet)
	app.handler = srv
	return app, nil
}

func (a *application) serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		a.log.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	}
}
