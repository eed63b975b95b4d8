// Command melissa runs the Melissa voice assistant and its companion tools
package main

import (
	"fmt"
	"os"

	"github.com/ethanbaker/melissa/pkg/agent"
	"github.com/ethanbaker/melissa/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFile    string
	jsonOutput bool

	cfg    *utils.Config
	logger *zap.Logger
)

func defaultEnvFile() string {
	return utils.GetEnvWithDefault("ENV_FILE", ".env")
}

var rootCmd = &cobra.Command{
	Use:           "melissa",
	Short:         "Melissa, a voice assistant that wakes on its name",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load global config, with .env.melissa overrides
		cfg = agent.LoadAgentConfig("melissa", envFile)

		var err error
		logger, err = utils.NewLogger(utils.LogConfigFromConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", defaultEnvFile(), "path to the .env file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "assistant", Title: "Assistant:"},
		&cobra.Group{ID: "remote", Title: "Remote control:"},
	)

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(wakeCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(memoriesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
