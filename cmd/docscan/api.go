package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docscan/internal/api"
	"github.com/jackzampolin/docscan/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running docscan server via HTTP.

These commands require a running server (docscan serve).
Use --server to specify a custom server URL.

Examples:
  docscan api health                 # Check server health
  docscan api capture --wait         # Capture a page and print the pass
  docscan api pick page.jpg --wait   # Recognize an existing image
  docscan api state text             # Print the recognized text
  docscan api state watch            # Follow view state changes`,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Capture and pick pass commands",
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "View state commands",
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Camera preview commands",
}

var capturesCmd = &cobra.Command{
	Use:   "captures",
	Short: "Stored capture commands",
}

var (
	waitAttempts uint
	waitDelay    time.Duration
)

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait until the server is ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := api.NewClient(getServerURL())
		if err := client.WaitReady(cmd.Context(), waitAttempts, waitDelay); err != nil {
			return fmt.Errorf("server not ready: %w", err)
		}
		fmt.Println("Server is ready")
		return nil
	},
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func addGroup(parent *cobra.Command, eps []api.Endpoint) {
	for _, ep := range eps {
		if cmd := ep.Command(getServerURL); cmd != nil {
			parent.AddCommand(cmd)
		}
	}
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	waitCmd.Flags().UintVar(&waitAttempts, "attempts", 30, "Readiness checks before giving up")
	waitCmd.Flags().DurationVar(&waitDelay, "delay", 500*time.Millisecond, "Initial delay between checks")

	addGroup(apiCmd, endpoints.TopLevelCommands())
	addGroup(tasksCmd, endpoints.TaskCommands())
	addGroup(stateCmd, endpoints.StateCommands())
	addGroup(previewCmd, endpoints.PreviewCommands())
	addGroup(capturesCmd, endpoints.CaptureCommands())

	apiCmd.AddCommand(waitCmd)
	apiCmd.AddCommand(tasksCmd)
	apiCmd.AddCommand(stateCmd)
	apiCmd.AddCommand(previewCmd)
	apiCmd.AddCommand(capturesCmd)
	rootCmd.AddCommand(apiCmd)
}
