package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Harshitk-cp/synapse/internal/client"
	"github.com/Harshitk-cp/synapse/internal/config"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
	timeout   time.Duration
	asJSON    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "synapse",
	Short: "Query and inspect a synapse cognition server",
	Long: `synapse talks to a running synapse server.

Examples:
  synapse query "What is the capital of France?"
  synapse status
  synapse status --reset
  synapse consolidate`,
	SilenceUsage: true,
}

func newClient() *client.Client {
	key := apiKey
	if key == "" {
		key = config.APIKey()
	}
	return client.New(serverURL, key, timeout)
}

func init() {
	_ = config.Load()

	defaultURL := os.Getenv("SYNAPSE_URL")
	if defaultURL == "" {
		defaultURL = fmt.Sprintf("http://localhost:%d", config.ServerPort())
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "Server base URL (or set SYNAPSE_URL)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (or set API_KEY env)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
