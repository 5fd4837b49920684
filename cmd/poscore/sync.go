package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	syncpkg "github.com/ldttech/poscore/internal/sync"
)

var syncFull bool

// syncCmd runs one sync cycle and exits. Useful for cron jobs and for
// forcing a push after a long offline stretch.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single sync cycle against the ERP backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cfg, nil)
		if err != nil {
			return err
		}
		defer c.close()

		ctx := context.Background()
		var report *syncpkg.Report
		if syncFull {
			report, err = c.engine.FullSync(ctx)
		} else {
			report, err = c.engine.AutoSync(ctx)
		}
		if err != nil {
			return err
		}

		fmt.Printf("products:  %d\n", report.Products.Count)
		fmt.Printf("customers: %d\n", report.Customers.Count)
		fmt.Printf("tax rules: %d\n", report.TaxRules.Count)
		fmt.Printf("queue:     %d processed, %d completed, %d failed\n",
			report.Queue.Processed, report.Queue.Completed, report.Queue.Failed)
		if syncFull {
			fmt.Printf("invoices:  %d pushed\n", report.Invoices.Count)
		}
		for _, msg := range report.ErrorStrings() {
			fmt.Printf("error: %s\n", msg)
		}
		if !report.Succeeded() {
			return fmt.Errorf("sync finished with errors")
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "also push unsynced invoices")
}
