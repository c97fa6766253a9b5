// Package cmd provides the command-line interface for flight.
//
// Configuration is layered, highest priority first:
//  1. Command-line flags (--port, --host, ...)
//  2. FLIGHT_* environment variables (FLIGHT_SERVER_PORT, ...)
//  3. The configuration file (.flight.yml by default)
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/flight/internal/config"
	"github.com/conneroisu/flight/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "flight",
	Short: "Stream declarative UI trees as resumable row streams",
	Long: `Flight renders declarative UI trees on the server, defers slow
subtrees behind boundaries, and streams the result as a line-oriented
row format that a consumer reconstructs incrementally.

Quick start:
  flight serve                      Start the render server
  flight encode page.yml            Encode a YAML tree to wire rows
  flight decode stream.txt          Reconstruct HTML from wire rows`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .flight.yml)")
	rootCmd.PersistentFlags().String("log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text",
		"log format (text, json)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("FLIGHT_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".flight")
	}

	viper.SetEnvPrefix("FLIGHT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from loaded configuration.
func newLogger(cfg *config.Config) logging.Logger {
	level := logging.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}
