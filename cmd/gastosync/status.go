package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbarrios/gastosync/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending changes and last sync time",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	pending := map[string]int{}
	total := 0

	for _, kind := range models.Kinds() {
		if kind == models.KindPlan {
			continue // pull-only, never pending
		}
		n, err := apiClient.Sync.PendingCount(kind)
		if err != nil {
			return fmt.Errorf("count pending %s: %w", kind, err)
		}
		pending[string(kind)] = n
		total += n
	}

	lastSync, err := apiClient.Sync.LastSyncMillis()
	if err != nil {
		return fmt.Errorf("load last sync time: %w", err)
	}

	if jsonOutput {
		result := map[string]interface{}{
			"owner":         apiClient.OwnerID(),
			"pending":       pending,
			"pending_total": total,
		}
		if lastSync > 0 {
			result["last_sync"] = time.UnixMilli(lastSync)
		}
		printJSON(result)
		return nil
	}

	fmt.Printf("Owner: %s\n\n", apiClient.OwnerID())
	fmt.Printf("Pending changes:\n")
	for _, kind := range models.Kinds() {
		if kind == models.KindPlan {
			continue
		}
		fmt.Printf("   %-12s %d\n", kind, pending[string(kind)])
	}

	if lastSync > 0 {
		fmt.Printf("\nLast sync: %s (%s ago)\n",
			time.UnixMilli(lastSync).Format(time.RFC3339),
			time.Since(time.UnixMilli(lastSync)).Round(time.Second))
	} else {
		fmt.Printf("\nLast sync: never\n")
	}

	if total > 0 {
		printWarning("\n%d record(s) waiting to be pushed", total)
	} else {
		printSuccess("\nEverything is in sync")
	}

	return nil
}
