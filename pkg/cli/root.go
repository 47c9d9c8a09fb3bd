// Package cli implements the publisher command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"model-publisher/internal/config"
	"model-publisher/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// rootOptions holds the resolved global flags and configuration.
type rootOptions struct {
	output     string
	serverRoot string
	configPath string
	logLevel   string

	cfg *config.Config
}

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		renderError(os.Stdout, os.Stderr, output, err)
		return 1
	}
	return 0
}

// renderError prints err as JSON on stdout, with the status a REST bridge
// would report for it, or as plain text on stderr.
func renderError(stdout, stderr io.Writer, output string, err error) {
	if output == "json" {
		_ = PrintJSON(stdout, map[string]interface{}{
			"error":       err.Error(),
			"http_status": domain.HTTPStatus(err),
		})
		return
	}
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "publisher",
		Short:         "Semantic model publisher",
		Long:          "Loads model packages from project directories, runs their schedules, and queries their models.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(opts.output); err != nil {
				return err
			}
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			// Flags win over the environment.
			if cmd.Flags().Changed("server-root") {
				cfg.ServerRoot = opts.serverRoot
				if !cmd.Flags().Changed("config") && os.Getenv("PUBLISHER_CONFIG") == "" {
					cfg.PublisherConfigPath = defaultConfigPath(opts.serverRoot)
				}
			}
			if cmd.Flags().Changed("config") {
				cfg.PublisherConfigPath = opts.configPath
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = opts.logLevel
			}
			opts.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&opts.serverRoot, "server-root", "", "Directory project paths are resolved against (env SERVER_ROOT)")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Publisher project list file (env PUBLISHER_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newPackagesCmd(opts))
	rootCmd.AddCommand(newModelsCmd(opts))
	rootCmd.AddCommand(newSchedulesCmd(opts))
	rootCmd.AddCommand(newTestConnectionCmd(opts))
	rootCmd.AddCommand(newQueryCmd(opts))
	rootCmd.AddCommand(newConnectionCmd(opts))
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}
