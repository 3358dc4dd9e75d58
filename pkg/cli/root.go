package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand
type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
	version    string
}

// NewRootCommand creates the quire root command
func NewRootCommand(version, commit, date string) *cobra.Command {
	opts := &rootOptions{version: version}

	cmd := &cobra.Command{
		Use:   "quire",
		Short: "Generate documentation sites from markdown",
		Long: `quire renders a directory of markdown documents into a static site.

Plugins extend the build by subscribing to render events. Native plugins are
Go shared objects, rpc plugins are executables speaking go-plugin net/rpc.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default quire.yaml when present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	cmd.AddCommand(newGenerateCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newPluginCommand(opts))

	return cmd
}
