package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/linchenxuan/incidental"
	"github.com/linchenxuan/incidental/config"
	"github.com/linchenxuan/incidental/runtime"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	var sampleInterval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the aggregation task until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, sampleInterval)
		},
	}
	cmd.Flags().DurationVar(&sampleInterval, "sample-interval", 10*time.Second,
		"how often Go runtime statistics are sampled, 0 disables sampling")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, sampleInterval time.Duration) error {
	app, err := incidental.New(cfg)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if sampleInterval > 0 {
		sampler, err := runtime.NewSampler(cfg.Task.Tags)
		if err != nil {
			_ = app.Stop(context.Background())
			return err
		}
		if err := app.Attach(ctx, sampler.Definitions()...); err != nil {
			_ = app.Stop(context.Background())
			return err
		}
		g.Go(func() error { return sampler.Run(ctx, sampleInterval) })
	}
	g.Go(func() error { return app.Run(ctx) })
	return g.Wait()
}
