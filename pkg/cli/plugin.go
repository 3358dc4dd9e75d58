package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/quire/pkg/app"
	"github.com/platinummonkey/quire/pkg/config"
	"github.com/platinummonkey/quire/pkg/plugins"
)

func newPluginCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Work with plugins",
	}

	cmd.AddCommand(newPluginVerifyCommand(root))

	return cmd
}

func newPluginVerifyCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <path>...",
		Short: "Load plugins against a scratch host and report the outcome",
		Long: `Import and activate each plugin the way generate would, without the
built-in plugins and without rendering. Exits non-zero if any plugin fails.`,
		Example: `  quire plugin verify ./plugins/search ./plugins/analytics/plugin.so`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, func(cfg *config.Config) {
				cfg.Plugins = args
			})
			if err != nil {
				return err
			}
			return runVerify(cmd, cfg)
		},
	}
}

func runVerify(cmd *cobra.Command, cfg *config.Config) (err error) {
	ctx := cmd.Context()

	s, err := newSession(ctx, cmd, cfg, app.WithoutBuiltins())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	results, err := s.bootstrap(ctx)
	if err != nil {
		return err
	}

	if failed := printResults(cmd.OutOrStdout(), results); failed > 0 {
		return fmt.Errorf("%d of %d plugins failed verification", failed, len(results))
	}
	return nil
}

// printResults writes one line per result and returns the failure count
func printResults(w io.Writer, results []plugins.Result) int {
	failed := 0
	for _, res := range results {
		name := ""
		if res.Manifest != nil && res.Manifest.ID != "" {
			name = fmt.Sprintf(" (%s %s)", res.Manifest.ID, res.Manifest.Version)
		}

		if res.OK() {
			fmt.Fprintf(w, "%-18s %s%s\n", res.Status, res.Path, name)
			continue
		}

		failed++
		cause := res.Err
		var loadErr *plugins.LoadError
		if errors.As(cause, &loadErr) {
			cause = loadErr.Err
		}
		fmt.Fprintf(w, "%-18s %s%s: %v\n", res.Status, res.Path, name, cause)
	}
	return failed
}
