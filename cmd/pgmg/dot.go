package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZakSingh/pgmg/pkg/pgmg"
)

func newDotCmd(flags *rootFlags, v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "dot",
		Short: "Render the planned dependency graph as Graphviz DOT",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, v)
			if err != nil {
				return err
			}
			log := newLogger(flags)
			result, err := pgmg.Plan(cmd.Context(), pgmg.TargetFromConfig(cfg), cfg.MigrationsDir, cfg.CodeDir, log)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Graph.ToDot())
			return nil
		},
	}
}
