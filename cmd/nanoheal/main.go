// Package main starts a NanoHeal server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/micromdm/nanoheal/config"
	"github.com/micromdm/nanoheal/engine"
	enginehttp "github.com/micromdm/nanoheal/engine/http"
	httpheal "github.com/micromdm/nanoheal/http"
	"github.com/micromdm/nanoheal/log/logkeys"
	"github.com/micromdm/nanoheal/stage"
	telhttp "github.com/micromdm/nanoheal/subsystem/telemetry/http"
	"github.com/micromdm/nanoheal/utils/ider"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/envflag"
	nanohttp "github.com/micromdm/nanolib/http"
	"github.com/micromdm/nanolib/http/trace"
	"github.com/micromdm/nanolib/log/stdlogfmt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// overridden by -ldflags -X
var version = "unknown"

const (
	apiUsername = "nanoheal"
	apiRealm    = "nanoheal"
)

func main() {
	var (
		flDebug   = flag.Bool("debug", false, "log debug messages")
		flListen  = flag.String("listen", ":9010", "HTTP listen address")
		flVersion = flag.Bool("version", false, "print version and exit")
		flDump    = flag.Bool("dump", false, "dump API request bodies")
		flAPIKey  = flag.String("api", "", "API key for API endpoints")
		flStorage = flag.String("storage", "inmem", "name of telemetry storage backend")
		flDSN     = flag.String("storage-dsn", "", "data source name (e.g. connection string or path)")
		flConfig  = flag.String("config", "", "path to YAML routing and stage config")
		flLatency = flag.Duration("latency", -1, "simulated external call latency (overrides config)")
		flIDs     = flag.String("id-format", "uuid", "workflow run ID format (uuid or ulid)")
	)
	envflag.Parse("NANOHEAL_", []string{"version"})

	if *flVersion {
		fmt.Println(version)
		return
	}

	logger := stdlogfmt.New(stdlogfmt.WithDebugFlag(*flDebug))

	cfg := config.Defaults()
	if *flConfig != "" {
		var err error
		if cfg, err = config.Load(*flConfig); err != nil {
			logger.Info(logkeys.Message, "loading config", logkeys.Error, err)
			os.Exit(1)
		}
	}
	stageOpts := cfg.StageOptions()
	if *flLatency >= 0 {
		stageOpts = append(stageOpts, stage.WithLatency(*flLatency))
	}

	runIDs, ok := ider.New(*flIDs)
	if !ok {
		logger.Info(logkeys.Error, fmt.Sprintf("unknown id format: %s", *flIDs))
		os.Exit(1)
	}

	telemetry, err := parseStorage(*flStorage, *flDSN)
	if err != nil {
		logger.Info(logkeys.Message, "parse storage", logkeys.Error, err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// configure the workflow engine
	e := engine.New(
		newRunStorage(),
		engine.WithLogger(logger.With("service", "engine")),
		engine.WithIDer(runIDs),
		engine.WithMetrics(engine.InitMetrics(reg)),
		engine.WithStageOptions(stageOpts...),
	)

	mux := flow.New()

	mux.Handle("/version", nanohttp.NewJSONVersionHandler(version))
	mux.Handle("/health", httpheal.HealthHandler(), "GET")
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), "GET")

	mux.Group(func(mux *flow.Mux) {
		if *flAPIKey != "" {
			mux.Use(func(h http.Handler) http.Handler {
				return nanohttp.NewSimpleBasicAuthHandler(h, apiUsername, *flAPIKey, apiRealm)
			})
		}
		if *flDump {
			mux.Use(func(h http.Handler) http.Handler {
				return httpheal.DumpHandler(h, os.Stdout)
			})
		}

		enginehttp.HandleAPIv1("/v1", mux, logger, e)
		telhttp.HandleAPIv1("/v1", mux, logger, telemetry)
	})

	if *flAPIKey == "" {
		logger.Info(logkeys.Message, "no API key set; API endpoints are unauthenticated")
	}

	traceIDs := ider.NewULID()

	srv := &http.Server{
		Addr:              *flListen,
		Handler:           trace.NewTraceLoggingHandler(mux, logger.With("handler", "log"), func(_ *http.Request) string { return traceIDs.ID() }),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Info(logkeys.Message, "shutting down server", logkeys.Error, err)
		}
	}()

	logger.Info(logkeys.Message, "starting server", "listen", *flListen)
	err = srv.ListenAndServe()
	logs := []interface{}{logkeys.Message, "server shutdown"}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logs = append(logs, logkeys.Error, err)
	}
	logger.Info(logs...)

	// let in-flight runs reach a terminal stage
	e.Wait()
}
