package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the offline operation queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cfg, nil)
		if err != nil {
			return err
		}
		defer c.close()

		ops, err := c.queue.List()
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("queue is empty")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tACTION\tSTATUS\tRETRIES\tENQUEUED\tLAST ERROR")
		for _, op := range ops {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
				op.ID, op.Type, op.Action, op.Status, op.RetryCount,
				op.EnqueuedAtTime().Format(time.RFC3339), op.LastError)
		}
		return w.Flush()
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Requeue a failed operation, or all failed operations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cfg, nil)
		if err != nil {
			return err
		}
		defer c.close()

		if len(args) == 0 {
			n, err := c.queue.RetryAllFailed()
			if err != nil {
				return err
			}
			fmt.Printf("requeued %d failed operation(s)\n", n)
			return nil
		}

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid operation id %q", args[0])
		}
		if err := c.queue.Retry(id); err != nil {
			return err
		}
		fmt.Printf("operation %d requeued\n", id)
		return nil
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an operation from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cfg, nil)
		if err != nil {
			return err
		}
		defer c.close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid operation id %q", args[0])
		}
		if err := c.queue.Remove(id); err != nil {
			return err
		}
		fmt.Printf("operation %d removed\n", id)
		return nil
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cfg, nil)
		if err != nil {
			return err
		}
		defer c.close()

		stats, err := c.queue.Stats()
		if err != nil {
			return err
		}
		for status, count := range stats {
			fmt.Printf("%s: %d\n", status, count)
		}
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueRemoveCmd)
	queueCmd.AddCommand(queueStatsCmd)
}
