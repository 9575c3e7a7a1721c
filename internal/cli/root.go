package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/statuscast/internal/config"
	"github.com/lazypower/statuscast/internal/logging"
)

var (
	configPath string
	logLevel   string
	devLogs    bool

	cfg    config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "statuscast",
	Short: "Turn free-form status updates into structured status cards",
	Long: `statuscast reads what you are up to in plain words, asks an LLM to structure
it, carries still-relevant context forward from your previous update, and
renders the result for chat. Single Go binary: HTTP API, Telegram bot, CLI.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if devLogs {
			loaded.Log.Development = true
		}
		cfg = loaded

		l, err := logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.statuscast/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&devLogs, "dev", false, "human-readable development logs")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(purgeCmd)
}
