package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/roomkit/bootstrap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the room server",
	Long: `Start the roomkit server.

The server will:
  - Load configuration from roomkit.yaml (or --config) and watch it
  - Or load configuration from ROOMKIT_* environment variables
  - Open the role database
  - Accept one host runtime websocket on /ws
  - Serve /health, /metrics and the read-only /api endpoints

Environment variables:
  ROOMKIT_SERVER_PORT       - Server port (default: 8080)
  ROOMKIT_HOST_TOKEN        - Bearer token the host must present
  ROOMKIT_DATABASE_DSN      - Database path (default: roomkit.db)
  ROOMKIT_ROOM_ROLES        - Comma-separated roles, lowest first
  ROOMKIT_AUTH_PASSWORDS    - role:hash pairs for the login command
  ROOMKIT_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  roomkit serve
  roomkit serve --config /etc/roomkit/roomkit.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "No config file at %s, using environment variables\n", cfgFile)
	}

	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: cfgFile,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	return app.Run(cmd.Context())
}
