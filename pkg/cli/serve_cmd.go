package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"model-publisher/internal/service/project"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		watch    bool
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load every project and run schedules until interrupted",
		Long:  "Loads the projects listed in the publisher file and runs their schedules. SIGHUP reloads every project, --watch reloads a project when its files change; SIGINT or SIGTERM stops.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()

			a, err := loadApp(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if watch {
				w, err := project.NewWatcher(a.store, a.logger, debounce)
				if err != nil {
					return err
				}
				go w.Run(ctx)
			}

			a.driver.Start()
			a.logger.Info("publisher started", "projects", a.store.ListProjects(), "jobs", a.driver.Len())

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			for {
				select {
				case <-ctx.Done():
					stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
					defer stop()
					a.driver.Stop(stopCtx)
					a.logger.Info("publisher stopped")
					return nil
				case <-hup:
					for _, name := range a.store.ListProjects() {
						if _, err := a.store.Reload(ctx, name); err != nil {
							a.logger.Error("reload failed", "project", name, "error", err)
						}
					}
				}
			}
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload a project when files under it change")
	cmd.Flags().DurationVar(&debounce, "watch-debounce", project.DefaultWatchDebounce, "Quiet period before a change triggers a reload")
	return cmd
}
