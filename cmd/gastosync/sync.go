package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbarrios/gastosync/internal/services/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle now",
	Long: `Sync pushes pending local changes to the server, then pulls
everything changed remotely since the last cycle.

The pull is incremental by default, fetching only documents newer than
the stored checkpoint. Use --full to re-pull the complete dataset.`,
	Example: `  gastosync sync --owner uid-123
  gastosync sync --owner uid-123 --full`,
	RunE: runSync,
}

var syncFull bool

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVarP(&syncFull, "full", "f", false,
		"Drop checkpoints and pull the complete remote dataset")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		printWarning("\nSync interrupted, cancelling...")
		apiClient.Sync.Cancel()
		cancel()
	}()

	if jsonOutput {
		return runSyncJSON(ctx)
	}
	return runSyncInteractive(ctx)
}

func runSyncInteractive(ctx context.Context) error {
	go func() {
		for event := range apiClient.Sync.Events() {
			switch event.Type {
			case sync.EventStarted:
				printInfo("Starting sync...")

			case sync.EventRecordPushed:
				logger.WithFields(map[string]interface{}{
					"kind":     event.Kind,
					"local_id": event.LocalID,
				}).Debug("Record pushed")

			case sync.EventRecordRejected:
				printWarning("Rejected %s #%d: %v", event.Kind, event.LocalID, event.Error)

			case sync.EventFailed:
				if event.Error != nil {
					printError("Sync failed: %v", event.Error)
				}
			}
		}
	}()

	startTime := time.Now()
	err := apiClient.Sync.SyncNow(ctx, sync.Options{Full: syncFull})
	duration := time.Since(startTime)

	progress := apiClient.Sync.GetProgress()
	if progress != nil {
		fmt.Printf("\nSync summary:\n")
		fmt.Printf("   Pushed:   %d\n", progress.Pushed)
		fmt.Printf("   Rejected: %d\n", progress.Rejected)
		fmt.Printf("   Pulled:   %d\n", progress.Pulled)
		fmt.Printf("   Duration: %s\n", duration.Round(time.Millisecond))
	}

	if err != nil {
		return err
	}

	printSuccess("\nSync completed successfully")
	return nil
}

func runSyncJSON(ctx context.Context) error {
	var collected []map[string]interface{}

	go func() {
		for event := range apiClient.Sync.Events() {
			data := map[string]interface{}{
				"type":      event.Type,
				"timestamp": event.Timestamp,
			}
			if event.Kind != "" {
				data["kind"] = event.Kind
			}
			if event.LocalID != 0 {
				data["local_id"] = event.LocalID
			}
			if event.Error != nil {
				data["error"] = event.Error.Error()
			}
			collected = append(collected, data)
		}
	}()

	err := apiClient.Sync.SyncNow(ctx, sync.Options{Full: syncFull})

	result := map[string]interface{}{
		"success": err == nil,
		"owner":   apiClient.OwnerID(),
		"events":  collected,
	}

	if progress := apiClient.Sync.GetProgress(); progress != nil {
		result["pushed"] = progress.Pushed
		result["rejected"] = progress.Rejected
		result["pulled"] = progress.Pulled
	}
	if err != nil {
		result["error"] = err.Error()
	}

	printJSON(result)
	return err
}
