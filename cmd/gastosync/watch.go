package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run continuously: periodic sync plus reconnect-triggered sync",
	Long: `Watch keeps the engine running in the foreground. A cycle runs on
the configured interval and once whenever validated internet access
returns after an outage. Server-side changes to the user profile are
applied as they stream in.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	apiClient.Start(ctx)
	apiClient.TriggerSync()

	// Surface connectivity transitions.
	online := apiClient.Monitor.Online().Subscribe(4)
	defer online.Cancel()

	// The user watch stream reconnects on failure as long as the
	// network reports online.
	go func() {
		transitions := apiClient.Monitor.Online().Subscribe(4)
		defer transitions.Cancel()

		for {
			if apiClient.Monitor.IsOnline() {
				if err := apiClient.Sync.WatchRemoteUser(ctx); err != nil && ctx.Err() == nil {
					logger.WithError(err).Warn("User watch dropped, will retry")
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-transitions.C:
			case <-time.After(30 * time.Second):
			}
		}
	}()

	printInfo("Watching for changes (Ctrl-C to stop)...")

	for {
		select {
		case <-sigChan:
			printWarning("\nShutting down...")
			cancel()
			return nil

		case state, ok := <-online.C:
			if !ok {
				return nil
			}
			if state {
				printSuccess("Online")
			} else {
				printWarning("Offline, edits will sync when connectivity returns")
			}
		}
	}
}
