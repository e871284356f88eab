package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/suzieq/ceo-office/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook gateway, office worker and scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var sched *scheduler.Scheduler
	if a.cfg.Scheduler.Enabled {
		s, err := a.scheduler()
		if err != nil {
			return err
		}
		sched = s
	}

	fmt.Fprintln(cmd.OutOrStdout(), color.CyanString(logo))
	fmt.Fprintf(cmd.OutOrStdout(), "Gateway: %s:%d\n", a.cfg.Server.Host, a.cfg.Server.Port)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.gateway().ListenAndServe(ctx) })
	g.Go(func() error { return a.office.Run(ctx) })
	g.Go(func() error {
		if err := a.bus.DispatchOutbound(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
	if sched != nil {
		g.Go(func() error { return sched.Run(ctx) })
		fmt.Fprintln(cmd.OutOrStdout(), "Scheduler started")
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Office stopped with error", "error", err)
		return err
	}
	slog.Info("Office stopped")
	return nil
}
