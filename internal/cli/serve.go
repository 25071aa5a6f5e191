package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lwt-sadais/EnsoAI/internal/api"
	"github.com/lwt-sadais/EnsoAI/internal/config"
	"github.com/lwt-sadais/EnsoAI/internal/lock"
)

// newServeCmd creates the serve command for the API server
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the enso API server for the desktop app.

The API server provides REST endpoints and a WebSocket event stream for:
  • Worktree management (list, add, remove, prune)
  • Merge orchestration (merge, continue, abort, resolve)
  • Conflict inspection and merge history
  • Per-repository settings

If the requested port is in use, the server will try subsequent ports
up to max-port-attempts times (default: 10). For example, if port 4690
is busy, it will try 4691, 4692, etc.

Example:
  enso serve              # Start on default port 4690
  enso serve --port 3000  # Start on custom port`,
		RunE: func(cmd *cobra.Command, args []string) error {
			host, _ := cmd.Flags().GetString("host")
			port, _ := cmd.Flags().GetInt("port")
			maxPortAttempts, _ := cmd.Flags().GetInt("max-port-attempts")

			ensoCfg := loadConfig(".")

			// Use config defaults if CLI flags not explicitly set
			if !cmd.Flags().Changed("host") {
				host = ensoCfg.Server.Host
			}
			if !cmd.Flags().Changed("port") {
				port = ensoCfg.Server.Port
			}
			if !cmd.Flags().Changed("max-port-attempts") {
				maxPortAttempts = ensoCfg.Server.MaxPortAttempts
				if maxPortAttempts <= 0 {
					maxPortAttempts = 10
				}
			}

			// One backend per user. Without the guard a second serve
			// would fall back to the next free port and the shell would
			// talk to two servers.
			if home, err := os.UserHomeDir(); err == nil {
				guard := lock.NewGuard(filepath.Join(home, config.EnsoDir))
				if err := guard.Check(); err != nil {
					return err
				}
				if err := guard.Acquire(); err != nil {
					return err
				}
				defer guard.Release()
			}

			server, err := api.New(&api.Config{
				Host:            host,
				Port:            port,
				MaxPortAttempts: maxPortAttempts,
				Logger:          newLogger(ensoCfg),
				Enso:            ensoCfg,
			})
			if err != nil {
				return err
			}
			defer server.Close()

			fmt.Printf("Starting API server (port %d, will try up to %d ports if busy)...\n", port, maxPortAttempts)
			fmt.Println("Press Ctrl+C to stop")

			// Handle graceful shutdown
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				<-sigCh
				fmt.Println("\nShutting down...")
				cancel()
			}()

			return server.StartContext(ctx)
		},
	}

	cmd.Flags().IntP("port", "p", 4690, "port to listen on")
	cmd.Flags().String("host", "127.0.0.1", "address to bind")
	cmd.Flags().Int("max-port-attempts", 10, "max ports to try if initial port is busy")

	return cmd
}
