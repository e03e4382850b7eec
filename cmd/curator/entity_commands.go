package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/catalog"
)

func newEntityCommand(ctx *commandContext) *cobra.Command {
	entityCmd := &cobra.Command{
		Use:   "entity",
		Short: "Inspect and manage catalog entities",
	}
	entityCmd.AddCommand(newEntityListCommand(ctx))
	entityCmd.AddCommand(newEntityLockCommand(ctx, true))
	entityCmd.AddCommand(newEntityLockCommand(ctx, false))
	return entityCmd
}

func newEntityListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(store *catalog.Store) error {
				entities, err := store.ListEntities(cmd.Context())
				if err != nil {
					return err
				}
				if len(entities) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty")
					return nil
				}
				rows := make([][]string, 0, len(entities))
				for _, entity := range entities {
					year := ""
					if entity.Year > 0 {
						year = strconv.Itoa(entity.Year)
					}
					rows = append(rows, []string{
						entity.ID,
						string(entity.Type),
						entity.Title,
						year,
						lockSummary(entity),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Type", "Title", "Year", "Locks"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
}

func newEntityLockCommand(ctx *commandContext, lock bool) *cobra.Command {
	use, short := "lock", "Lock an asset type against automatic reselection"
	if !lock {
		use, short = "unlock", "Allow automatic reselection of an asset type"
	}
	return &cobra.Command{
		Use:   use + " <entity-id|library-path> <asset-type>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assetType, ok := catalog.ParseAssetType(args[1])
			if !ok {
				return fmt.Errorf("unknown asset type %q (expected poster, backdrop, or logo)", args[1])
			}
			return ctx.withCatalog(func(store *catalog.Store) error {
				entity, err := resolveEntity(cmd, store, args[0])
				if err != nil {
					return err
				}
				if err := store.SetLock(cmd.Context(), entity.ID, assetType, lock); err != nil {
					return err
				}
				state := "locked"
				if !lock {
					state = "unlocked"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s for %q\n", assetType, state, entity.Title)
				return nil
			})
		},
	}
}

func lockSummary(entity *catalog.Entity) string {
	var locked []string
	for _, assetType := range catalog.AssetTypes() {
		if entity.Locked(assetType) {
			locked = append(locked, string(assetType))
		}
	}
	if len(locked) == 0 {
		return "-"
	}
	return strings.Join(locked, ",")
}
