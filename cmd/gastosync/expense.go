package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbarrios/gastosync/internal/models"
)

var expenseCmd = &cobra.Command{
	Use:   "expense",
	Short: "Manage expense records",
}

var expenseAddCmd = &cobra.Command{
	Use:   "add <amount>",
	Short: "Record an expense",
	Long: `Add records an expense against a category. The category is named by
its local ID; an unpushed category is referenced by a placeholder and
resolved automatically once it reaches the server.`,
	Args: cobra.ExactArgs(1),
	RunE: runExpenseAdd,
}

var expenseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active expenses",
	RunE:  runExpenseList,
}

var expenseRmCmd = &cobra.Command{
	Use:   "rm <local-id>",
	Short: "Delete an expense",
	Args:  cobra.ExactArgs(1),
	RunE:  runExpenseRm,
}

var (
	expenseCategory int64
	expenseDate     string
)

func init() {
	rootCmd.AddCommand(expenseCmd)
	expenseCmd.AddCommand(expenseAddCmd, expenseListCmd, expenseRmCmd)

	expenseAddCmd.Flags().Int64VarP(&expenseCategory, "category", "c", 0,
		"Local ID of the category (required)")
	expenseAddCmd.Flags().StringVarP(&expenseDate, "date", "d", "",
		"Date of the expense, YYYY-MM-DD (default today)")

	_ = expenseAddCmd.MarkFlagRequired("category")
}

func runExpenseAdd(cmd *cobra.Command, args []string) error {
	amount, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", args[0])
	}

	cat, err := apiClient.Store.CategoryByLocalID(expenseCategory)
	if err != nil {
		return fmt.Errorf("load category #%d: %w", expenseCategory, err)
	}
	if cat.OwnerID != apiClient.OwnerID() {
		return fmt.Errorf("category #%d belongs to another owner", expenseCategory)
	}
	if cat.Deleted() {
		return fmt.Errorf("category #%d is deleted", expenseCategory)
	}

	// An unpushed category has no remote ID; reference it by the
	// local placeholder until the next push assigns one.
	categoryRef := cat.RemoteID
	if categoryRef == "" {
		categoryRef = fmt.Sprintf("local_%d", cat.LocalID)
	}

	occurredAt := time.Now().UnixMilli()
	if expenseDate != "" {
		day, err := time.Parse("2006-01-02", expenseDate)
		if err != nil {
			return fmt.Errorf("invalid date %q, want YYYY-MM-DD", expenseDate)
		}
		occurredAt = day.UnixMilli()
	}

	exp := &models.Expense{
		OwnerID:          apiClient.OwnerID(),
		CategoryRemoteID: categoryRef,
		Amount:           amount,
		OccurredAt:       occurredAt,
	}

	localID, err := apiClient.Store.InsertExpense(exp)
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"local_id": localID, "amount": amount})
		return nil
	}

	printSuccess("Recorded %.2f against %q (#%d), will sync on next cycle",
		amount, cat.Name, localID)
	return nil
}

func runExpenseList(cmd *cobra.Command, args []string) error {
	exps, err := apiClient.Store.ActiveExpenses(apiClient.OwnerID())
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}

	if jsonOutput {
		printJSON(exps)
		return nil
	}

	if len(exps) == 0 {
		printInfo("No expenses yet")
		return nil
	}

	fmt.Printf("%-6s %-12s %-12s %s\n", "ID", "AMOUNT", "DATE", "STATE")
	for _, e := range exps {
		fmt.Printf("%-6d %-12.2f %-12s %s\n",
			e.LocalID, e.Amount,
			time.UnixMilli(e.OccurredAt).Format("2006-01-02"),
			e.SyncState)
	}
	return nil
}

func runExpenseRm(cmd *cobra.Command, args []string) error {
	localID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid local id %q", args[0])
	}

	if err := apiClient.Store.SoftDeleteExpense(localID); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	printSuccess("Deleted expense #%d, tombstone will sync on next cycle", localID)
	return nil
}
