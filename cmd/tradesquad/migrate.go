package main

import (
	"github.com/spf13/cobra"
	"github.com/tradesquad/tradesquad/config"
	srv "github.com/tradesquad/tradesquad/internal/server"
)

func migrateCMD() *cobra.Command {
	var cfgPath string
	var dir string
	var steps int
	var migrate = &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Apply database migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return err
			}
			return srv.Migrate(dir, dsn, args[0], steps)
		},
	}
	migrate.Flags().StringVar(&dir, "dir", "file://migrations", "migrations source")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	migrate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return migrate
}
