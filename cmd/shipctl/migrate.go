package main

import (
	"fmt"
	"strings"

	"github.com/BearBump/ShipBox/internal/storage"
	"github.com/spf13/cobra"
)

func newMigrateCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if d := strings.ToLower(st.cfg.ShipBox.StorageDriver); d == storage.DriverMemory {
				return fmt.Errorf("migrate needs the %s storage driver, config selects %q", storage.DriverPostgres, d)
			}
			// Opening the store applies the schema.
			_, closeFn, err := st.open(st.cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}
