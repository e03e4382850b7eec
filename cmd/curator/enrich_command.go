package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"curator/internal/catalog"
	"curator/internal/queue"
)

func newEnrichCommand(ctx *commandContext) *cobra.Command {
	var force bool

	enrichCmd := &cobra.Command{
		Use:   "enrich <entity-id|library-path>",
		Short: "Queue artwork enrichment for one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entity *catalog.Entity
			if err := ctx.withCatalog(func(store *catalog.Store) error {
				var err error
				entity, err = resolveEntity(cmd, store, args[0])
				return err
			}); err != nil {
				return err
			}

			return ctx.withQueue(func(store *queue.Store) error {
				payload := queue.EnrichPayload{
					EntityID:     entity.ID,
					EntityType:   string(entity.Type),
					Manual:       true,
					ForceRefresh: force,
				}
				job, err := store.Enqueue(cmd.Context(), queue.TypeEnrich, payload,
					queue.ManualPriority, queue.RetryPolicy{})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enrichment for %q queued as job %d\n", entity.Title, job.ID)
				return nil
			})
		},
	}
	enrichCmd.Flags().BoolVar(&force, "force", false, "Re-apply selection and cache even when unchanged")
	return enrichCmd
}

// resolveEntity accepts either a catalog id or a library path.
func resolveEntity(cmd *cobra.Command, store *catalog.Store, ref string) (*catalog.Entity, error) {
	entity, err := store.GetEntity(cmd.Context(), ref)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		entity, err = store.GetEntityByPath(cmd.Context(), ref)
		if err != nil {
			return nil, err
		}
	}
	if entity == nil {
		return nil, fmt.Errorf("no entity matches %q", ref)
	}
	return entity, nil
}
