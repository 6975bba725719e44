package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/logging"
	"github.com/BearBump/ShipBox/internal/storage"
	"github.com/spf13/cobra"
)

type openStoreFunc func(cfg *config.Config) (storage.Store, func(), error)

func defaultOpenStore(cfg *config.Config) (storage.Store, func(), error) {
	return storage.Open(cfg, 30*time.Second)
}

type rootState struct {
	cfgPath  string
	logLevel string
	cfg      *config.Config
	open     openStoreFunc
}

func newRootCmd(open openStoreFunc) *cobra.Command {
	st := &rootState{open: open}

	root := &cobra.Command{
		Use:           "shipctl",
		Short:         "ShipBox administration tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if st.cfgPath == "" {
				return fmt.Errorf("config path is required (--config or configPath env)")
			}
			cfg, err := config.LoadConfig(st.cfgPath)
			if err != nil {
				return err
			}
			if st.logLevel != "" {
				cfg.Logging.Level = st.logLevel
			}
			slog.SetDefault(logging.NewWithWriter(cfg.Logging, cmd.ErrOrStderr()))
			st.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&st.cfgPath, "config", os.Getenv("configPath"), "path to the YAML config")
	root.PersistentFlags().StringVar(&st.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(newMigrateCmd(st), newCreateUserCmd(st))
	return root
}
