package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/docscan/internal/home"
	"github.com/jackzampolin/docscan/internal/server"
	"github.com/jackzampolin/docscan/internal/server/endpoints"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docscan server",
	Long: `Start the docscan HTTP server.

The server owns the camera session and the scanner's view state. When it
shuts down (via Ctrl+C or SIGTERM), in-flight passes are cancelled and the
camera is released. Config file edits are applied without a restart
(recognizers, flash mode, orientation policy, superseded-pass guard).

The server provides:
  - /             - Scanner page
  - /health       - Basic server health check
  - /ready        - Readiness check (includes preview binding)
  - /api/...      - Capture, pick, state and task endpoints
  - /swagger      - API documentation

Examples:
  docscan serve                    # Start on the configured port (8080)
  docscan serve --port 3000        # Start on custom port
  docscan serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger, err := newLogger()
		if err != nil {
			return err
		}

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cfgMgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		cfgMgr.SetLogger(logger)
		cfgMgr.WatchConfig()
		if f := cfgMgr.ConfigFile(); f != "" {
			logger.Info("using config file", "path", f)
		}

		srv, err := server.New(server.Config{
			Host:            serveHost,
			Port:            servePort,
			Home:            h,
			ConfigManager:   cfgMgr,
			SwaggerSpecPath: endpoints.GetSwaggerSpecPath(),
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port)")

	rootCmd.AddCommand(serveCmd)
}
