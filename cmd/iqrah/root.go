package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iqrahapp/iqrah-core/internal/logging"
)

var (
	configPath string
	debugMode  bool

	// cliLogger is the structured command-level logger, independent of the
	// file-category logger used by the library internals.
	cliLogger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "iqrah",
	Short: "iqrah — local-first spaced-repetition core for Quranic memorization",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if debugMode {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := zapCfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		cliLogger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cliLogger != nil {
			_ = cliLogger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (defaults embedded if absent)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable verbose logging and category file logs")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(adhocCmd)
	rootCmd.AddCommand(debugCmd)
}
