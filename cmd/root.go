/*
	Copyright 2023 Markus Papenbrock
*/

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mpapenbr/sentinel-replay/pkg/cmd/replay"
	"github.com/mpapenbr/sentinel-replay/pkg/cmd/server"
	"github.com/mpapenbr/sentinel-replay/pkg/cmd/verify"
	"github.com/mpapenbr/sentinel-replay/pkg/config"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/playback"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/sector"
	"github.com/mpapenbr/sentinel-replay/version"
)

const envPrefix = "SENTINEL"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "sentinel",
	Short:   "Telemetry replay engine with sensor attack simulation",
	Long:    ``,
	Version: version.FullVersion,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:funlen // flag definitions
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.sentinel.yml)")

	rootCmd.PersistentFlags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format (json, text)")
	rootCmd.PersistentFlags().StringVar(&config.LogFilter,
		"log-filter",
		"",
		"zapfilter rules to restrict log output")
	rootCmd.PersistentFlags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	rootCmd.PersistentFlags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data")
	rootCmd.PersistentFlags().StringVar(&config.TelemetryExporter,
		"telemetry-exporter",
		"grpc",
		"telemetry exporter (grpc, stdout)")
	rootCmd.PersistentFlags().StringVar(&config.WaitForServices,
		"wait-for-services",
		"15s",
		"Duration to wait for other services to be ready")

	rootCmd.PersistentFlags().StringVar(&config.SessionURL, "session-url", "",
		"base URL of the session service")
	rootCmd.PersistentFlags().StringVar(&config.SessionFile, "session-file", "",
		"session fixture (yaml or json) used instead of the session service")
	rootCmd.PersistentFlags().StringVar(&config.SessionCacheTTL, "session-cache-ttl", "30m",
		"how long fetched sessions are cached (0 disables the cache)")
	rootCmd.PersistentFlags().StringVar(&config.AnalysisURL, "analysis-url", "",
		"base URL of the analysis service")
	rootCmd.PersistentFlags().StringVar(&config.AnalysisMinVersion, "analysis-min-version", "",
		"minimum version the analysis service must report")
	rootCmd.PersistentFlags().StringVar(&config.AnalysisTimeout, "analysis-timeout", "2m",
		"timeout of a single analysis request")
	rootCmd.PersistentFlags().StringVar(&config.NatsURL, "nats-url", "",
		"NATS server frames are published to")
	rootCmd.PersistentFlags().StringVar(&config.NatsSubjectPrefix, "nats-subject-prefix", "frames",
		"subject prefix of published frames")

	rootCmd.PersistentFlags().Float64Var(&config.SpeedFactor, "speed-factor", 1,
		"playback speed multiplier")
	rootCmd.PersistentFlags().StringVar(&config.SamplePeriod, "sample-period",
		playback.DefaultSamplePeriod.String(),
		"real time between two telemetry samples")
	rootCmd.PersistentFlags().Float64Var(&config.StartOffset, "start-offset",
		playback.DefaultStartOffset,
		"buffer index playback starts at")
	rootCmd.PersistentFlags().IntVar(&config.Timesteps, "timesteps", 10,
		"window length of the analysis model")
	rootCmd.PersistentFlags().Float64Var(&config.Sector3Margin, "sector3-margin",
		sector.DefaultSector3Margin,
		"distance before the track end that completes sector 3")
	rootCmd.PersistentFlags().StringVar(&config.NeutralColor, "neutral-color",
		sector.DefaultNeutralColor,
		"color of sectors not yet reached")
	rootCmd.PersistentFlags().Float64Var(&config.ThrottleBias, "throttle-bias", 10,
		"added to throttle by the throttle-drift attack")
	rootCmd.PersistentFlags().Float64Var(&config.GpsOffset, "gps-offset", 2000,
		"added to X and Y by the gps-spoof attack")

	// add commands here
	rootCmd.AddCommand(server.NewServerCmd())
	rootCmd.AddCommand(replay.NewReplayCmd())
	rootCmd.AddCommand(verify.NewVerifyCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".sentinel" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sentinel")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	bindFlags(rootCmd, viper.GetViper())
	for _, cmd := range rootCmd.Commands() {
		bindFlags(cmd, viper.GetViper())
	}
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --speed-factor to SENTINEL_SPEED_FACTOR
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		// Apply the viper config value to the flag when the flag is not set and viper
		// has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
