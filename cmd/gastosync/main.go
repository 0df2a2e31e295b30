package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mbarrios/gastosync/internal/client"
	"github.com/mbarrios/gastosync/internal/config"
	"github.com/mbarrios/gastosync/internal/events"
)

var rootCmd = &cobra.Command{
	Use:   "gastosync",
	Short: "Offline-first expense synchronization",
	Long: `Gastosync keeps a local expense database in step with the remote
document store. Edits made offline are pushed when connectivity
returns; remote changes are pulled incrementally per record kind.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initApp(cmd)
	},
}

var (
	cfgFile    string
	ownerID    string
	jsonOutput bool
	verbose    bool

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file (default: ./gastosync.yaml)")
	rootCmd.PersistentFlags().StringVarP(&ownerID, "owner", "o", "",
		"Owner ID the local data belongs to (required)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}

func initApp(cmd *cobra.Command) error {
	loader := config.NewLoader(cfgFile)

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if verbose {
		cfg.Log.Level = "debug"
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if ownerID == "" {
		ownerID = os.Getenv("GASTOSYNC_OWNER")
	}
	if ownerID == "" {
		return fmt.Errorf("owner id is required (use --owner or GASTOSYNC_OWNER)")
	}

	apiClient, err = client.New(cfg, ownerID, logger)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}

	return nil
}

func main() {
	defer func() {
		if apiClient != nil {
			_ = apiClient.Close()
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// Output helpers

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

func printSuccess(format string, args ...interface{}) {
	successColor.Fprintf(os.Stdout, format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	warnColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	infoColor.Fprintf(os.Stdout, format+"\n", args...)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
