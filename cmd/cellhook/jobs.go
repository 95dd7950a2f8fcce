package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/cellhook/internal/api"
	"github.com/mattjoyce/cellhook/internal/auth"
	"github.com/mattjoyce/cellhook/internal/config"
	"github.com/mattjoyce/cellhook/internal/dispatch"
	"github.com/mattjoyce/cellhook/internal/lock"
	"github.com/mattjoyce/cellhook/internal/log"
	"github.com/mattjoyce/cellhook/internal/recordstore"
	"github.com/mattjoyce/cellhook/internal/runner"
	"github.com/mattjoyce/cellhook/internal/storage"
	"github.com/mattjoyce/cellhook/internal/webhook"
)

// loadConfig discovers, loads and validates the config, then sets up logging.
func loadConfig(path string) (*config.Config, error) {
	resolved, err := config.Discover(path)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(resolved)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.Service.LogLevel)
	return cfg, nil
}

// openStore opens the record store named by cfg. The returned func closes it.
func openStore(ctx context.Context, cfg *config.Config) (*recordstore.SQLiteStore, func(), error) {
	db, err := storage.OpenSQLite(ctx, cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open record store %s: %w", cfg.Store.Path, err)
	}
	return recordstore.NewSQLiteStore(db, cfg.Store.BaseID), func() { _ = db.Close() }, nil
}

func newRunner(cfg *config.Config, store dispatch.Store) *runner.Runner {
	d := dispatch.New(store, dispatch.Options{
		BaseID:    cfg.Store.BaseID,
		Endpoints: runner.Endpoints(cfg.Services),
		Logger:    log.WithComponent("dispatch"),
	})
	return runner.New(cfg, d, log.WithComponent("runner"))
}

// exitCodeFor maps a job error onto the run exit code.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case dispatch.IsValidation(err):
		return exitValidation
	case dispatch.IsRemote(err):
		return exitRemote
	case dispatch.IsTimeout(err):
		return exitTimeout
	default:
		return exitError
	}
}

func runJob(args []string) int {
	if hasHelpFlag(args) {
		fmt.Println("Usage: cellhook run <job> --record <id> [--config PATH] [--json]")
		return exitOK
	}

	var job string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		job, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	recordID := fs.String("record", "", "Record id")
	jsonOut := fs.Bool("json", false, "Print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if job == "" {
		job = fs.Arg(0)
	}
	if job == "" || *recordID == "" {
		fmt.Fprintln(os.Stderr, "Usage: cellhook run <job> --record <id>")
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}
	defer closeStore()

	r := newRunner(cfg, store)
	res, err := r.Run(ctx, job, *recordID)
	if errors.Is(err, runner.ErrUnknownJob) {
		fmt.Fprintf(os.Stderr, "Unknown job %q (configured: %s)\n", job, strings.Join(r.Profiles(), ", "))
		return exitError
	}
	code := exitCodeFor(err)

	if *jsonOut {
		out := struct {
			runner.Result
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}{Result: res, Status: "dispatched"}
		if err != nil {
			out.Status = "failed"
			out.Error = err.Error()
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return code
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed (invocation %s): %v\n", job, res.InvocationID, err)
		return code
	}
	fmt.Printf("%s dispatched for %s (invocation %s)\n", job, *recordID, res.InvocationID)
	return exitOK
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	logger := log.WithComponent("main")
	logger.Info("cellhook starting", "version", version, "config", cfg.SourcePath)

	if !cfg.API.Enabled && (cfg.Webhooks == nil || len(cfg.Webhooks.Endpoints) == 0) {
		logger.Error("nothing to serve: enable api or configure webhooks")
		return exitError
	}

	pidLock, err := lock.Acquire(lock.PathFor(cfg.Store.Path))
	if err != nil {
		logger.Error("failed to acquire store lock (another server may be running)", "error", err)
		return exitError
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open record store", "error", err)
		return exitError
	}
	defer closeStore()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Webhooks != nil && len(cfg.Webhooks.Endpoints) > 0 {
		whCfg, err := webhook.FromGlobalConfig(cfg.Webhooks)
		if err != nil {
			logger.Error("invalid webhook config", "error", err)
			return exitError
		}
		srv := webhook.New(whCfg, newRunner(cfg, store), log.WithComponent("webhook"))
		g.Go(func() error { return ignoreCanceled(srv.Start(gctx)) })
	}

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{Name: t.Name, Token: t.Token, Scopes: t.Scopes})
		}
		srv := api.New(api.Config{Listen: cfg.API.Listen, Tokens: tokens}, store, log.WithComponent("api"))
		g.Go(func() error { return ignoreCanceled(srv.Start(gctx)) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		return exitError
	}
	logger.Info("cellhook stopped")
	return exitOK
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
