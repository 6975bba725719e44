package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/ShipBox/internal/identity"
	"github.com/spf13/cobra"
)

func newCreateUserCmd(st *rootState) *cobra.Command {
	var (
		username string
		password string
		admin    bool
	)
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return errors.New("--username and --password are required")
			}
			store, closeFn, err := st.open(st.cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			idp, err := identity.New(store, st.cfg.ShipBox.JWTSecret, time.Hour)
			if err != nil {
				return err
			}
			u, err := idp.CreateUser(cmd.Context(), username, password, admin)
			if errors.Is(err, identity.ErrUserExists) {
				return fmt.Errorf("user %q already exists", username)
			}
			if err != nil {
				return err
			}

			slog.Info("user created", "user_id", u.ID, "username", u.Username, "admin", u.IsAdmin)
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", u.Username, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant administrator rights")
	return cmd
}
