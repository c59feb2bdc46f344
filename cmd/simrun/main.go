// Command simrun runs a scenario document end to end (spec §6: `run
// <input> [-o output-file] [--flat-schema] [--warn-as-error]`), wiring
// the kernel Context, Scheduler, Dynamic Resource Exchange, and output
// backends together, and exits 0 on success, 1 on an invalid input
// document, 2 on a runtime failure.
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

	"github.com/aristath/simkernel/internal/backend/s3backend"
	"github.com/aristath/simkernel/internal/backend/sqlitebackend"
	"github.com/aristath/simkernel/internal/backend/wsbackend"
	"github.com/aristath/simkernel/internal/config"
	simctx "github.com/aristath/simkernel/internal/context"
	"github.com/aristath/simkernel/internal/diagnostics"
	"github.com/aristath/simkernel/internal/exchange"
	"github.com/aristath/simkernel/internal/httpapi"
	"github.com/aristath/simkernel/internal/kernerr"
	"github.com/aristath/simkernel/internal/scenario"
	"github.com/aristath/simkernel/internal/scheduler"
	"github.com/aristath/simkernel/internal/snapshot"
	"github.com/aristath/simkernel/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Environment-level defaults (spec §6's CYCLUS_PATH/CYCLUS_NUC_DATA
	// equivalents) load first; CLI flags below override them.
	envCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load environment config: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet("simrun", flag.ContinueOnError)
	out := fs.String("o", "output.sqlite", "output database path")
	flatSchema := fs.Bool("flat-schema", envCfg.FlatSchema, "use a fixed-column schema instead of JSON payload rows")
	warnAsError := fs.Bool("warn-as-error", envCfg.WarnAsError, "promote warnings to errors (reserved: not yet enforced)")
	httpAddr := fs.String("http-addr", "", "bind address for the read-only introspection API (disabled if empty)")
	wsAddr := fs.String("ws-addr", "", "bind address for the live-stream websocket backend (disabled if empty)")
	s3Bucket := fs.String("s3-bucket", "", "also archive every batch to this S3-compatible bucket (disabled if empty)")
	s3Prefix := fs.String("s3-prefix", "runs/", "key prefix for S3 archival objects")
	s3Region := fs.String("s3-region", "us-east-1", "region for S3 archival objects")
	pretty := fs.Bool("pretty", true, "pretty-print logs to the console")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: simrun <input> [-o output-file] [--flat-schema] [--warn-as-error]")
		return 1
	}
	input := fs.Arg(0)
	_ = warnAsError

	logLevel := envCfg.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	log := logger.New(logger.Config{Level: logLevel, Pretty: *pretty})

	f, err := os.Open(input)
	if err != nil {
		reportFailure(log, "open input", err)
		return 1
	}
	defer f.Close()

	doc, err := scenario.Parse(f)
	if err != nil {
		reportFailure(log, "parse scenario", err)
		return 1
	}

	ctx, err := scenario.Load(doc, log)
	if err != nil {
		reportFailure(log, "load scenario", err)
		return 1
	}

	sqliteBE, err := sqlitebackend.New(sqlitebackend.Config{Path: *out, FlatSchema: *flatSchema}, log)
	if err != nil {
		reportFailure(log, "open output backend", err)
		return 2
	}
	ctx.Rec.RegisterBackend(sqliteBE)

	if *s3Bucket != "" {
		s3BE, err := s3backend.New(context.Background(), s3backend.Config{Bucket: *s3Bucket, Prefix: *s3Prefix, Region: *s3Region}, log)
		if err != nil {
			log.Warn().Err(err).Msg("s3 archival backend unavailable, continuing without it")
		} else {
			ctx.Rec.RegisterBackend(s3BE)
		}
	}

	var wsSrv *http.Server
	if *wsAddr != "" {
		wsBE := wsbackend.New(log)
		ctx.Rec.RegisterBackend(wsBE)
		mux := http.NewServeMux()
		mux.HandleFunc("/stream", wsBE.ServeHTTP)
		wsSrv = &http.Server{Addr: *wsAddr, Handler: mux}
		go func() {
			if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("websocket backend stopped")
			}
		}()
		defer wsSrv.Close()
	}

	mkt := exchange.New(ctx, log)
	sched := scheduler.New(ctx, mkt, log)
	ctx.SetScheduler(sched)

	sampler, err := diagnostics.New(ctx.Rec, 5*time.Second, log)
	if err != nil {
		log.Warn().Err(err).Msg("diagnostics sampler unavailable, continuing without it")
	} else {
		sampler.Start()
		defer sampler.Stop()
	}

	snap := snapshot.New(ctx.Rec, log)
	if err := snap.AddCheckpoint("@every 1m"); err != nil {
		log.Warn().Err(err).Msg("failed to register checkpoint schedule")
	} else {
		snap.Start()
		defer snap.Stop()
	}

	var api *httpapi.Server
	if *httpAddr != "" {
		api = httpapi.New(httpapi.Config{Addr: *httpAddr}, &kernelAdapter{ctx: ctx, sched: sched}, log)
		go func() {
			if err := api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("introspection api stopped")
			}
		}()
		defer api.Close()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan error, 1)
	go func() { done <- sched.Run() }()

	select {
	case <-quit:
		log.Info().Msg("signal received, stopping at next step boundary")
		sched.Stop()
		err = <-done
	case err = <-done:
	}

	if closeErr := ctx.Rec.Close(); closeErr != nil {
		log.Error().Err(closeErr).Msg("error closing recorder")
	}

	if err != nil {
		reportFailure(log, "simulation run", err)
		return 2
	}
	log.Info().Str("output", *out).Msg("simulation complete")
	return 0
}

// reportFailure writes the failing stage, the error kind (when the
// error carries one), and the cause string to stderr.
func reportFailure(log zerolog.Logger, stage string, err error) {
	log.Error().Err(err).Str("stage", stage).Msg("simrun failed")
	if kind, ok := kernerr.KindOf(err); ok {
		fmt.Fprintf(os.Stderr, "%s: %s: %v\n", stage, kind, err)
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", stage, err)
}

type kernelAdapter struct {
	ctx   *simctx.Context
	sched *scheduler.Scheduler
}

func (k *kernelAdapter) Info() httpapi.SimInfo {
	return httpapi.SimInfo{SimID: k.ctx.Rec.SimID(), Duration: k.ctx.Duration(), DT: k.ctx.DT()}
}

func (k *kernelAdapter) Now() int { return k.ctx.Now() }

func (k *kernelAdapter) Query(table string) ([]map[string]interface{}, error) {
	rows, err := k.ctx.Rec.Query(table)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Fields)
	}
	return out, nil
}

func (k *kernelAdapter) Stop() { k.sched.Stop() }
