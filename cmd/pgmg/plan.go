package main

import (
	"fmt"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZakSingh/pgmg/internal/planner"
	"github.com/ZakSingh/pgmg/pkg/pgmg"
)

func newPlanCmd(flags *rootFlags, v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Compute and print a reconciliation plan without applying it",
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
			printPlan(cmd, result, flags.verbose)
			return nil
		},
	}
}

func printPlan(cmd *cobra.Command, result *planner.PlanResult, verbose bool) {
	out := cmd.OutOrStdout()
	if result.Idempotent {
		fmt.Fprintln(out, "no changes; database already matches the declared schema")
		return
	}
	if len(result.NewMigrations) > 0 {
		fmt.Fprintf(out, "%d migration(s) to run:\n", len(result.NewMigrations))
		for _, m := range result.NewMigrations {
			fmt.Fprintf(out, "  %s\n", m.Name)
		}
	}
	if len(result.Changes) > 0 {
		fmt.Fprintf(out, "%d object change(s):\n", len(result.Changes))
		for _, c := range result.Changes {
			fmt.Fprintf(out, "  %-8s %s\n", c.Action, c.Ref)
		}
	}
	if verbose {
		fmt.Fprintln(out, "---")
		pretty.Fprintf(out, "%# v\n", result.Changes)
	}
}
