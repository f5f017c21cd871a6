// Command equiploan runs the equipment loan service and its maintenance tasks.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"equiploan/internal/adapters/export"
	"equiploan/internal/adapters/httpapi"
	"equiploan/internal/blob"
	"equiploan/internal/config"
	"equiploan/internal/core"
)

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "equiploan:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "equiploan",
		Usage: "Equipment loan and borrow-session service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", Sources: cli.EnvVars("EQUIPLOAN_CONFIG")},
			&cli.StringSliceFlag{Name: "env-file", Usage: "dotenv files loaded before the config", Value: []string{".env"}},
		},
		Commands: []*cli.Command{
			serveCommand(),
			sweepCommand(out),
			dashboardCommand(out),
			exportCommand(out),
			seedCommand(out),
		},
	}
}

// app bundles the collaborators shared by every command.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	svc     *core.Service
	metrics *core.PrometheusMetricsRecorder
	blobs   blob.Store
	closers []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func bootstrap(ctx context.Context, cmd *cli.Command) (*app, error) {
	if err := config.LoadDotEnv(cmd.StringSlice("env-file")...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	metrics := core.NewPrometheusMetricsRecorder()
	recorder := core.MultiMetricsRecorder{metrics, core.NewExpvarMetricsRecorder("")}
	store, err := core.OpenPersistentStore(ctx, cfg.StorageOptions(), core.NewDefaultRulesEngine(), logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, metrics: metrics}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.svc = core.NewService(store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(recorder),
		core.WithActor(cfg.Actor),
	)
	return a, nil
}

func (a *app) openBlobs(ctx context.Context) (blob.Store, error) {
	if a.blobs != nil {
		return a.blobs, nil
	}
	store, err := blob.Open(ctx, a.cfg.BlobOptions())
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	a.blobs = store
	return store, nil
}

func withApp(fn func(context.Context, *cli.Command, *app) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := bootstrap(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, cmd, a)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API with the overdue sweeper and export worker",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address, overrides http.addr"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			addr := a.cfg.HTTP.Addr
			if v := cmd.String("addr"); v != "" {
				addr = v
			}
			return serve(ctx, a, addr)
		}),
	}
}

func serve(ctx context.Context, a *app, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, err := a.openBlobs(ctx)
	if err != nil {
		return err
	}
	worker := export.NewWorker(a.svc, blobs, export.WithLogger(a.logger), export.WithQueueSize(a.cfg.Export.QueueSize))
	worker.Start()

	sweeper := core.NewOverdueSweeper(a.svc, a.cfg.Sweep.Interval, a.logger)
	sweeper.Start(ctx)

	srv := &http.Server{
		Addr: addr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Service:     a.svc,
			Exports:     worker,
			Gatherer:    a.metrics.Registry(),
			Logger:      a.logger,
			CORSOrigins: a.cfg.HTTP.CORSOrigins,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http listening", "addr", addr, "storage", a.cfg.Storage.Driver, "blob", blobs.Driver())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			sweeper.Stop()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", "error", err)
	}
	sweeper.Stop()
	if err := worker.Stop(shutdownCtx); err != nil {
		a.logger.Warn("export worker stop", "error", err)
	}
	return nil
}

func sweepCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Mark borrowed transactions past their due date as overdue",
		Action: withApp(func(ctx context.Context, _ *cli.Command, a *app) error {
			n, _, err := a.svc.SweepOverdue(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "marked %d transaction(s) overdue\n", n)
			return err
		}),
	}
}

func dashboardCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "dashboard",
		Usage: "Print the dashboard counters as JSON",
		Action: withApp(func(ctx context.Context, _ *cli.Command, a *app) error {
			dash, err := a.svc.Dashboard(ctx)
			if err != nil {
				return err
			}
			return printJSON(out, dash)
		}),
	}
}

func exportCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Generate a report into the artifact store",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Required: true, Usage: "inventory, transactions, overdue, maintenance, damaged, sessions or audit"},
			&cli.StringSliceFlag{Name: "format", Value: []string{"csv"}, Usage: "csv and/or json"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			blobs, err := a.openBlobs(ctx)
			if err != nil {
				return err
			}
			req := export.Request{Kind: export.Kind(cmd.String("kind")), RequestedBy: a.cfg.Actor}
			for _, f := range cmd.StringSlice("format") {
				req.Formats = append(req.Formats, export.Format(f))
			}
			job, err := export.NewWorker(a.svc, blobs, export.WithLogger(a.logger)).Run(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(out, job)
		}),
	}
}

func seedCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Replace all stored state with the built-in demo dataset",
		Action: withApp(func(ctx context.Context, _ *cli.Command, a *app) error {
			if err := a.svc.ResetToSeed(ctx); err != nil {
				return err
			}
			_, err := fmt.Fprintln(out, "store reset to seed dataset")
			return err
		}),
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
