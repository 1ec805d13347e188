// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// hubctl is a command-line tool for controlling a running instancehub daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wingedpig/instancehub/pkg/client"
)

var (
	version    = "0.1.0"
	apiURL     = "http://127.0.0.1:7733"
	jsonOutput = false

	// API client instance
	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:     "hubctl",
	Short:   "Control a running instancehub daemon",
	Version: version,
	Long: `hubctl talks to the instancehub HTTP API.

Instances may be named by id or by their exact name.

Environment:
  INSTANCEHUB_API    Base URL of the daemon (default: http://127.0.0.1:7733)`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(strings.TrimSuffix(apiURL, "/"))
	},
}

func init() {
	if env := os.Getenv("INSTANCEHUB_API"); env != "" {
		apiURL = env
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", apiURL, "base URL of the daemon")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

// resolveInstance finds an instance by id or exact name.
func resolveInstance(ctx context.Context, ref string) (*client.Instance, error) {
	list, err := apiClient.Instances.List(ctx)
	if err != nil {
		return nil, err
	}
	return findInstance(list, ref)
}

func findInstance(list []client.Instance, ref string) (*client.Instance, error) {
	var matches []client.Instance
	for _, inst := range list {
		if inst.ID == ref {
			return &inst, nil
		}
		if inst.Name == ref {
			matches = append(matches, inst)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no instance named %q", ref)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%d instances are named %q, use an id", len(matches), ref)
	}
}
