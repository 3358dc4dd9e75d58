package cli

import (
	"github.com/spf13/cobra"

	"github.com/platinummonkey/quire/pkg/config"
)

func newGenerateCommand(root *rootOptions) *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render the input directory into a site",
		Long: `Render every markdown document under the input directory and write the
pages to the configured output. Plugins are activated before the first render.

With --watch the site is rebuilt whenever the input changes, until interrupted.`,
		Example: `  quire generate --input docs --out site
  quire generate -p ./plugins/search -p ./plugins/analytics --hosted-base-url https://docs.example.com/
  quire generate --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, func(cfg *config.Config) {
				flags.apply(cmd, cfg)
			})
			if err != nil {
				return err
			}
			return runGenerate(cmd, cfg, flags.watch)
		},
	}

	flags.register(cmd)

	return cmd
}

func runGenerate(cmd *cobra.Command, cfg *config.Config, watch bool) (err error) {
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
	if err := s.build(ctx); err != nil {
		return err
	}

	if !watch {
		return nil
	}
	return s.watch(ctx, nil)
}
