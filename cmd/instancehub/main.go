// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// instancehub runs the instance daemon and the file-copy monitor.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wingedpig/instancehub/internal/app"
	"github.com/wingedpig/instancehub/internal/config"
	"github.com/wingedpig/instancehub/internal/monitor"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "instancehub",
	Short:   "Run named groups of shell commands, one console each",
	Version: version,
	Long: `instancehub keeps named instances, each a list of shell commands.
Starting an instance runs every command in its own shell with its own
console. Use hubctl to drive a running daemon.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveOpts struct {
	configPath string
	host       string
	port       int
	dataDir    string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon and its HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := serveOpts.configPath
		if configPath == "" {
			// A config file is optional; defaults apply without one
			if found, err := config.NewLoader().FindConfig(); err == nil {
				configPath = found
			}
		}
		if configPath != "" {
			log.Printf("Using config: %s", configPath)
		}

		application, err := app.New(app.Options{
			ConfigPath: configPath,
			Host:       serveOpts.host,
			Port:       serveOpts.port,
			DataDir:    serveOpts.dataDir,
			Version:    version,
		})
		if err != nil {
			return err
		}
		return application.Run(context.Background())
	},
}

var monitorDebounce time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor <rules-file>",
	Short: "Back up files once, then copy them whenever they change",
	Long: `monitor reads "file | source dir | destination dir | backup dir" rules,
copies each source file to its backup directory, and then copies the
source file over the destination every time it is written. Runs until
interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return monitor.RunFile(ctx, args[0], os.Stdout, monitorDebounce)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("instancehub %s\n", version)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveOpts.configPath, "config", "c", "", "path to config file (default: auto-detect)")
	serveCmd.Flags().StringVar(&serveOpts.host, "host", "", "HTTP server host (overrides config)")
	serveCmd.Flags().IntVar(&serveOpts.port, "port", 0, "HTTP server port (overrides config)")
	serveCmd.Flags().StringVar(&serveOpts.dataDir, "data-dir", "", "data directory (overrides config)")

	monitorCmd.Flags().DurationVar(&monitorDebounce, "debounce",
		config.ParseDuration(config.DefaultConfig().Monitor.Debounce, 100*time.Millisecond),
		"wait this long after the last write before copying")

	rootCmd.AddCommand(serveCmd, monitorCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
