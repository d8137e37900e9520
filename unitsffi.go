package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxpert/unitsffi/admin"
	"github.com/maxpert/unitsffi/bind"
	"github.com/maxpert/unitsffi/cfg"
	"github.com/maxpert/unitsffi/lattice"
	"github.com/maxpert/unitsffi/native"
	"github.com/maxpert/unitsffi/telemetry"
	"github.com/maxpert/unitsffi/units"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: unitsffi [flags] <command>

commands:
  check     load the library, validate the lattice and describe it
  selftest  exercise aliasing, free functions and release
  serve     run the admin API and /metrics until interrupted
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "check"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Str("library", cfg.Config.Library.Name).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	if err := run(command); err != nil {
		log.Error().Err(err).Str("command", command).Msg("Command failed")
		os.Exit(1)
	}
}

func run(command string) error {
	registry, runtime, err := load()
	if err != nil {
		return fmt.Errorf("load native library: %w", err)
	}
	defer func() {
		if err := native.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Failed to unload native library")
		}
	}()
	defer func() {
		if err := runtime.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to reclaim native objects")
		}
	}()

	switch command {
	case "check":
		return check(registry, runtime)
	case "selftest":
		_, err = units.SelfTest(runtime)
		return err
	case "serve":
		return serve(registry, runtime)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// load initializes the process-wide registry from configuration and binds
// the units lattice to it.
func load() (*native.Registry, *bind.Runtime, error) {
	lib := cfg.Config.Library
	opts := native.Options{
		LibraryName: lib.Name,
		SearchDirs:  lib.SearchDirs,
		HeaderName:  lib.Header,
		HeaderDirs:  lib.HeaderDirs,
		Exports:     lib.Exports,
	}
	if err := native.Init(opts); err != nil {
		return nil, nil, err
	}
	registry := native.Default()

	graph, err := units.NewGraph()
	if err != nil {
		return nil, nil, err
	}
	if err := graph.Validate(registry); err != nil {
		return nil, nil, err
	}

	runtime := bind.NewRuntime(registry, graph, bind.RuntimeConfig{LazyCasts: lib.LazyCasts})
	return registry, runtime, nil
}

func check(registry *native.Registry, runtime *bind.Runtime) error {
	iface := registry.Interface()
	log.Info().
		Str("path", registry.LibraryPath()).
		Str("header", iface.Path).
		Str("digest", fmt.Sprintf("%016x", iface.Digest())).
		Int("declarations", iface.Len()).
		Msg("Library loaded")

	graph := runtime.Graph()
	for _, t := range graph.Types() {
		names := func(types []*lattice.Type) []string {
			out := make([]string, len(types))
			for i, b := range types {
				out[i] = b.Name
			}
			return out
		}
		log.Info().
			Str("type", t.Name).
			Strs("bases", names(t.Bases)).
			Strs("ancestors", names(graph.AncestorsOf(t))).
			Ints("constructor_arities", t.Arities()).
			Strs("fields", t.FieldNames()).
			Strs("methods", t.MethodNames()).
			Msg("Type")
	}
	for _, fn := range graph.Functions() {
		log.Info().Str("function", fn.Name).Str("signature", fn.Sig.String()).Msg("Function")
	}

	// binding every expected entry point surfaces missing exports up front
	for _, sig := range graph.Expected() {
		if _, err := registry.Resolve(sig.Name); err != nil {
			return err
		}
	}
	log.Info().Int("symbols", len(registry.Resolved())).Msg("All entry points bound")
	return nil
}

func serve(registry *native.Registry, runtime *bind.Runtime) error {
	if !cfg.Config.Admin.Enabled {
		return errors.New("admin server is disabled in configuration")
	}

	mux := http.NewServeMux()
	admin.RegisterRoutes(mux, admin.NewAdminHandlers(registry, runtime))
	if handler := telemetry.GetMetricsHandler(); handler != nil {
		mux.Handle("/metrics", handler)
	}

	collector := telemetry.NewMetricsCollector(runtime, time.Duration(cfg.Config.Admin.StatsIntervalMS)*time.Millisecond)
	collector.Start()
	defer collector.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Config.Admin.BindAddress, cfg.Config.Admin.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", addr).Msg("Admin server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down admin server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
