package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Diesmo/scripthost/internal/capability"
	"github.com/Diesmo/scripthost/internal/config"
	"github.com/Diesmo/scripthost/internal/host"
	"github.com/Diesmo/scripthost/internal/manifest"
	"github.com/Diesmo/scripthost/internal/modules"
	"github.com/Diesmo/scripthost/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the host with configured instances",
		Long: `Start the script host runtime.

Loads the host configuration, compiles all script manifests from the
configured scripts directory, opens the durable store, starts the
configured instances, and loads every autorun script whose manifest
permits the instance backend.

Example:
  scripthost run --config ./host.yaml
  scripthost run --config /etc/scripthost/host.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to host config YAML (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runHost(opts *RunOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	slog.Info("loading config", "path", opts.Config)
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	slog.Info("compiling script manifests", "dir", cfg.ScriptsDir)
	manifests, errs := manifest.LoadDir(cfg.ScriptsDir)
	if len(errs) > 0 {
		for _, mErr := range errs {
			slog.Error("manifest error", "error", mErr)
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("%d manifest error(s) in %s", len(errs), cfg.ScriptsDir))
	}
	slog.Info("manifests compiled", "count", len(manifests))

	slog.Info("opening store", "path", cfg.StorePath)
	backend, err := store.OpenSQLite(cfg.StorePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	st := store.New(backend)

	h := host.New(host.Options{
		Store:          st,
		Table:          capability.NewTable(),
		Grants:         capability.Grants(cfg.Grants),
		ConnectTimeout: time.Duration(cfg.ConnectTimeout),
	})
	registerModules(h)

	for _, inst := range cfg.Instances {
		slog.Info("starting instance", "id", inst.ID, "backend", inst.Backend)
		if _, err := h.StartInstance(inst.ID, host.Backend(inst.Backend), inst.LogLevel); err != nil {
			shutdownHost(h)
			return WrapExitError(ExitCommandError, "failed to start instance", err)
		}
	}

	loadAutorun(h, cfg, manifests)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	fmt.Fprintln(cmd.OutOrStdout(), "Host started. Press Ctrl-C to stop.")

	select {
	case sig := <-sigChan:
		slog.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	shutdownHost(h)
	slog.Info("host stopped")
	return nil
}

// registerModules registers every built-in module against the host's
// capability table, wiring module services to the host's shared state.
func registerModules(h *host.Host) {
	modules.Register(h.Table(), modules.Services{
		Store:    h.Store(),
		Bus:      h.Bus(),
		Sessions: h.Sessions(),
		QueueOf:  h.QueueOf,
		BackendOf: func(instanceID string) (string, bool) {
			inst, ok := h.Instance(instanceID)
			if !ok {
				return "", false
			}
			return string(inst.Backend()), true
		},
	})
}

// loadAutorun loads every autorun script into every running instance whose
// backend the manifest supports. Load failures are logged and skipped so one
// bad grant cannot keep the host down.
func loadAutorun(h *host.Host, cfg *config.Config, manifests []*manifest.Manifest) {
	for _, instCfg := range cfg.Instances {
		inst, ok := h.Instance(instCfg.ID)
		if !ok {
			continue
		}
		for _, m := range manifests {
			if !m.Autorun {
				continue
			}
			if !m.SupportsBackend(string(inst.Backend())) {
				continue
			}
			script := m.Name
			_, err := inst.LoadScript(m, func(sc *host.ScriptContext) error {
				slog.Debug("script loaded", "script", sc.Name(), "instance", instCfg.ID)
				return nil
			})
			if err != nil {
				slog.Error("failed to load script", "script", script, "instance", instCfg.ID, "error", err)
			}
		}
	}
}

func shutdownHost(h *host.Host) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Close(ctx); err != nil {
		slog.Error("error closing host", "error", err)
	}
}
