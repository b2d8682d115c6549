// Package cmd provides the CLI commands for Aegis Core.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aegiscore/aegis/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "aegis-core",
	Short: "Aegis Core - agentic tool-call security gateway",
	Long: `Aegis Core sits between an agent and the tools it calls: every request is
routed through an intent router, checked against a policy engine, executed
through a sandboxed tool registry or gated provider client, and recorded in
a tamper-evident trace ledger.

Quick start:
  1. Create a config file: aegis-core.yaml
  2. Run: aegis-core start

Configuration:
  Config is loaded from aegis-core.yaml in the current directory,
  $HOME/.aegis-core/, or /etc/aegis-core/.

  Environment variables can override config values with the AEGIS_CORE_ prefix.
  Example: AEGIS_CORE_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the control plane's HTTP server
  hash-key    Generate a SHA-256 hash for an API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./aegis-core.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
