package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dominds/minddrive/internal/bus"
	"github.com/dominds/minddrive/internal/config"
	"github.com/dominds/minddrive/internal/driver"
	"github.com/dominds/minddrive/internal/gateway"
	"github.com/dominds/minddrive/internal/minds"
	"github.com/dominds/minddrive/internal/store"
	filestore "github.com/dominds/minddrive/internal/store/file"
	sqlitestore "github.com/dominds/minddrive/internal/store/sqlite"
	"github.com/dominds/minddrive/internal/tools"
	"github.com/dominds/minddrive/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the backend driver, heartbeats and the websocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.Service)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	loader := minds.NewLoader(cfg.Workspace)
	defer loader.Close()

	toolReg := tools.NewRegistry()
	toolReg.Register(tools.NewRemindTool())

	pub := bus.NewMessageBus()
	rt := driver.New(cfg, st, loader, toolReg, pub)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.RunBackend(ctx) })
	g.Go(func() error { return rt.RunHeartbeats(ctx, cfg.Heartbeats) })
	if !cfg.Gateway.Disabled {
		srv := gateway.NewServer(cfg, rt, pub)
		g.Go(func() error { return srv.Run(ctx) })
	}

	slog.Info("minddrive serving", "workspace", cfg.Workspace, "store", cfg.Store.Backend)
	err = g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "file":
		return filestore.New(cfg.Store.Path)
	case "sqlite":
		return sqlitestore.Open(cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
