package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"curator/internal/queue"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Queue a library scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(store *queue.Store) error {
				job, err := store.Enqueue(cmd.Context(), queue.TypeScan,
					queue.ScanPayload{Manual: true}, queue.ManualPriority, queue.RetryPolicy{})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scan queued as job %d\n", job.ID)
				return nil
			})
		},
	}
}
