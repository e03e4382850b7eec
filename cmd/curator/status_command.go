package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"curator/internal/catalog"
	"curator/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show overall library and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats queue.Stats
			if err := ctx.withQueue(func(store *queue.Store) error {
				var err error
				stats, err = store.GetStats(cmd.Context())
				return err
			}); err != nil {
				return err
			}

			return ctx.withCatalog(func(store *catalog.Store) error {
				entities, err := store.ListEntities(cmd.Context())
				if err != nil {
					return err
				}
				movies, series, locked := 0, 0, 0
				for _, entity := range entities {
					switch entity.Type {
					case catalog.EntityMovie:
						movies++
					case catalog.EntitySeries:
						series++
					}
					for _, assetType := range catalog.AssetTypes() {
						if entity.Locked(assetType) {
							locked++
							break
						}
					}
				}

				rows := [][]string{
					{"Movies", strconv.Itoa(movies)},
					{"Series", strconv.Itoa(series)},
					{"Entities with locks", strconv.Itoa(locked)},
					{"Jobs pending", strconv.Itoa(stats.Pending)},
					{"Jobs processing", strconv.Itoa(stats.Processing)},
					{"Jobs retrying", strconv.Itoa(stats.Retrying)},
					{"Jobs failed", strconv.Itoa(stats.Failed)},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Metric", "Value"}, rows,
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}
