package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List the subscription plan catalog",
	Long: `Plans shows the locally cached plan catalog. The catalog is
read-only on the device and refreshed by every sync cycle.`,
	RunE: runPlans,
}

func init() {
	rootCmd.AddCommand(plansCmd)
}

func runPlans(cmd *cobra.Command, args []string) error {
	plans, err := apiClient.Store.Plans()
	if err != nil {
		return fmt.Errorf("list plans: %w", err)
	}

	if jsonOutput {
		printJSON(plans)
		return nil
	}

	if len(plans) == 0 {
		printInfo("No plans cached yet, run a sync first")
		return nil
	}

	fmt.Printf("%-24s %-10s %s\n", "NAME", "PRICE", "DESCRIPTION")
	for _, p := range plans {
		if !p.IsActive {
			continue
		}
		fmt.Printf("%-24s %-10.2f %s\n", p.Name, p.Price, p.Description)
	}
	return nil
}
