package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/curriculum-engine/internal/app"
	"github.com/yungbote/curriculum-engine/internal/config"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
)

const (
	exitFailure = 1
	exitBudget  = 2
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "curriculum",
	Short: "Generate, validate and export the weekly Latin curriculum",
	Long: `curriculum researches, plans and writes each week of the Latin curriculum,
judges the result with the quality gate and packages validated weeks for delivery.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CURRICULUM_CONFIG"), "path to a TOML config file")
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(outlineCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, apperr.ErrBudgetExceeded) {
		os.Exit(exitBudget)
	}
	os.Exit(exitFailure)
}

// openApp builds the application. Offline commands never reach the
// generation API and so need no credentials.
func openApp(ctx context.Context, offline bool) (*app.App, error) {
	load := config.Load
	if offline {
		load = config.LoadOffline
	}
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
