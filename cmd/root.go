// Package cmd assembles the voicechanger command line interface
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/voicechanger/cmd/configcmd"
	"github.com/tphakala/voicechanger/cmd/devices"
	"github.com/tphakala/voicechanger/cmd/run"
	"github.com/tphakala/voicechanger/internal/buildinfo"
	"github.com/tphakala/voicechanger/internal/conf"
	"github.com/tphakala/voicechanger/internal/logger"
	"github.com/tphakala/voicechanger/internal/telemetry"
)

// RootCommand creates and returns the root command
func RootCommand(info *buildinfo.Context) *cobra.Command {
	var (
		configFile string
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:           "voicechanger",
		Short:         "Real-time microphone pitch shifter",
		Version:       info.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		// flag binding only fails on programming errors
		panic(err)
	}

	rootCmd.AddCommand(
		run.Command(info),
		devices.Command(),
		configcmd.Command(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		central, err = initialize(configFile, info)
		return err
	}
	// runs after failed commands too, unlike PersistentPostRun
	cobra.OnFinalize(func() {
		telemetry.Close()
		_ = central.Close()
	})

	return rootCmd
}

// initialize loads the configuration and sets up logging and telemetry
// before any subcommand runs
func initialize(configFile string, info *buildinfo.Context) (*logger.CentralLogger, error) {
	settings, err := conf.Load(configFile)
	if err != nil {
		return nil, err
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if err := telemetry.InitSentry(&settings.Sentry, info.GetVersion()); err != nil {
		// telemetry is optional, keep running without it
		central.Module("main").Warn("failed to initialize Sentry", logger.Error(err))
	}
	return central, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to the config file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
