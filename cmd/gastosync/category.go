package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mbarrios/gastosync/internal/models"
)

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage expense categories",
}

var categoryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE:  runCategoryAdd,
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active categories",
	RunE:  runCategoryList,
}

var categoryRmCmd = &cobra.Command{
	Use:   "rm <local-id>",
	Short: "Delete a category",
	Args:  cobra.ExactArgs(1),
	RunE:  runCategoryRm,
}

var categoryIcon string

func init() {
	rootCmd.AddCommand(categoryCmd)
	categoryCmd.AddCommand(categoryAddCmd, categoryListCmd, categoryRmCmd)

	categoryAddCmd.Flags().StringVarP(&categoryIcon, "icon", "i", "",
		"Icon name for the category")
}

func runCategoryAdd(cmd *cobra.Command, args []string) error {
	cat := &models.Category{
		OwnerID:  apiClient.OwnerID(),
		Name:     args[0],
		Icon:     categoryIcon,
		IsActive: true,
	}

	localID, err := apiClient.Store.InsertCategory(cat)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"local_id": localID, "name": cat.Name})
		return nil
	}

	printSuccess("Created category %q (#%d), will sync on next cycle", cat.Name, localID)
	return nil
}

func runCategoryList(cmd *cobra.Command, args []string) error {
	cats, err := apiClient.Store.ActiveCategories(apiClient.OwnerID())
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}

	if jsonOutput {
		printJSON(cats)
		return nil
	}

	if len(cats) == 0 {
		printInfo("No categories yet")
		return nil
	}

	fmt.Printf("%-6s %-20s %-10s %s\n", "ID", "NAME", "ICON", "STATE")
	for _, c := range cats {
		fmt.Printf("%-6d %-20s %-10s %s\n", c.LocalID, c.Name, c.Icon, c.SyncState)
	}
	return nil
}

func runCategoryRm(cmd *cobra.Command, args []string) error {
	localID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid local id %q", args[0])
	}

	if err := apiClient.Store.SoftDeleteCategory(localID); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	printSuccess("Deleted category #%d, tombstone will sync on next cycle", localID)
	return nil
}
