package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/simcompanion/internal/config"
	"github.com/zeusync/simcompanion/internal/core/observability/log"
	"github.com/zeusync/simcompanion/internal/host"
	"github.com/zeusync/simcompanion/internal/host/bridge"
	"github.com/zeusync/simcompanion/internal/host/loopback"
	"github.com/zeusync/simcompanion/internal/injector"
	"github.com/zeusync/simcompanion/internal/session"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	configPath string
	listen     string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("simcompanion", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&opts.listen, "serve-loopback", "", "serve the in-memory host to bridge clients on this address instead of running a session")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if opts.listen != "" {
		cfg.Transport.Loopback.Listen = opts.listen
	}

	app, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	defer cleanup()

	logger := app.Logger
	if cfg.Transport.Loopback.Listen != "" {
		err = serveLoopback(ctx, cfg, app, stdin)
	} else {
		err = runSession(ctx, app, stdin)
	}

	var connErr *session.ConnectionError
	switch {
	case errors.As(err, &connErr):
		logger.Error("connection failed", log.Error(err))
		return 1
	case err != nil:
		logger.Error("exited with error", log.Error(err))
		return 1
	}
	return 0
}

func runSession(ctx context.Context, app *injector.App, stdin io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return app.Session.Run(gctx)
	})
	if app.Config.Metrics.Addr != "" {
		g.Go(func() error {
			return serveHTTP(gctx, app.Config.Metrics.Addr, metricsMux(app.Config.Metrics.Path, app.Registry), app.Logger)
		})
	}

	// Only the in-memory host takes keys from the terminal; a real host
	// reads its own keyboard.
	if lb, ok := app.Transport.(*loopback.Host); ok {
		app.Logger.Info("loopback host: type keys and press enter",
			log.String("create", app.Config.Session.Bindings.Create),
			log.String("rudder_left", app.Config.Session.Bindings.RudderLeft),
			log.String("rudder_right", app.Config.Session.Bindings.RudderRight),
			log.String("quit", app.Config.Session.Bindings.Quit),
		)
		go pressKeys(stdin, lb.PressKey)
	}

	return g.Wait()
}

// serveLoopback exposes a fresh in-memory host per bridge client. Keys read
// from stdin go to the host of the current client.
func serveLoopback(ctx context.Context, cfg config.Config, app *injector.App, stdin io.Reader) error {
	var current atomic.Pointer[loopback.Host]
	handler := bridge.NewHandler(func() host.Transport {
		lb := injector.NewLoopback(cfg)
		current.Store(lb)
		return lb
	}, cfg.Session.PollInterval, app.Logger)

	metricsPath := cfg.Metrics.Path
	if cfg.Metrics.Addr != "" {
		metricsPath = ""
	}
	mux := loopbackMux(handler, metricsPath, app.Registry)

	go pressKeys(stdin, func(key string) bool {
		if lb := current.Load(); lb != nil {
			return lb.PressKey(key)
		}
		return false
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, cfg.Transport.Loopback.Listen, mux, app.Logger)
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return serveHTTP(gctx, cfg.Metrics.Addr, metricsMux(cfg.Metrics.Path, app.Registry), app.Logger)
		})
	}
	return g.Wait()
}

// loopbackMux mounts the bridge handler at /host and, when metricsPath is
// set, the registry next to it.
func loopbackMux(handler http.Handler, metricsPath string, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/host", handler)
	if metricsPath != "" {
		mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return mux
}

func metricsMux(path string, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// serveHTTP runs srv until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger log.Log) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listener started", log.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", addr, err)
	}
	logger.Info("http listener stopped", log.String("addr", addr))
	return nil
}

// pressKeys turns every non-space character read from r into a key press.
func pressKeys(r io.Reader, press func(key string) bool) int {
	delivered := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		for _, ch := range sc.Text() {
			if ch == ' ' || ch == '\t' {
				continue
			}
			if press(strings.ToUpper(string(ch))) {
				delivered++
			}
		}
	}
	return delivered
}
