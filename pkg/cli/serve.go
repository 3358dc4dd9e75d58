package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/quire/pkg/config"
	"github.com/platinummonkey/quire/pkg/preview"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	flags := &buildFlags{}
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build the site and serve it for preview",
		Long: `Build the site into the output directory and serve it over HTTP.

The server exposes /healthz, /readyz, and /metrics next to the site. With
--watch the site is rebuilt on change and /readyz reports the last build.`,
		Example: `  quire serve --watch
  quire serve --addr :9000 --input docs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, func(cfg *config.Config) {
				flags.apply(cmd, cfg)
				if cmd.Flags().Changed("addr") {
					cfg.Server.Addr = addr
				}
			})
			if err != nil {
				return err
			}
			return runServe(cmd, cfg, flags.watch)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default 127.0.0.1:8000)")

	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config, watch bool) (err error) {
	if cfg.Output.Type != config.SinkFilesystem {
		return fmt.Errorf("serve requires the %s output type, got %s", config.SinkFilesystem, cfg.Output.Type)
	}

	ctx := cmd.Context()

	s, err := newSession(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err := s.bootstrap(ctx); err != nil {
		return err
	}

	server := preview.New(cfg.Server.Addr, cfg.Output.Dir, s.app.Version(), s.app.Metrics(), s.log)
	buildErr := s.build(ctx)
	server.SetBuildResult(buildErr)
	if buildErr != nil && !watch {
		return buildErr
	}
	if buildErr != nil {
		s.log.WithError(buildErr).Error("Initial build failed, waiting for changes")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.Server.ShutdownTimeout)
	})
	if watch {
		g.Go(func() error {
			return s.watch(gctx, server.SetBuildResult)
		})
	}

	return g.Wait()
}
