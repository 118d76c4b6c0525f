package main

import (
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZakSingh/pgmg/internal/applier"
	"github.com/ZakSingh/pgmg/internal/checkhook"
	"github.com/ZakSingh/pgmg/pkg/pgmg"
)

func newApplyCmd(flags *rootFlags, v *viper.Viper) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile the database against the declared schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, v)
			if err != nil {
				return err
			}
			log := newLogger(flags)
			target := pgmg.TargetFromConfig(cfg)

			plan, err := pgmg.Plan(cmd.Context(), target, cfg.MigrationsDir, cfg.CodeDir, log)
			if err != nil {
				return err
			}
			printPlan(cmd, plan, flags.verbose)
			if plan.Idempotent {
				return nil
			}

			if !yes {
				confirmed, err := confirmApply()
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}

			var hook checkhook.Hook = checkhook.NoOp{}
			if cfg.CheckFunction != "" {
				hook = checkhook.FunctionHook{FunctionName: cfg.CheckFunction}
			}

			result, err := pgmg.Apply(cmd.Context(), target, cfg.MigrationsDir, cfg.CodeDir, pgmg.ApplyOptions{
				LockTimeout: cfg.LockTimeout(),
				CheckHook:   hook,
				TestMode:    cfg.TestMode,
			}, log)
			if err != nil {
				return err
			}
			printResult(cmd, result)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "apply without an interactive confirmation prompt")
	return cmd
}

func confirmApply() (bool, error) {
	prompt := promptui.Prompt{
		Label:     "Apply the above plan",
		IsConfirm: true,
	}
	_, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrAbort {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func printResult(cmd *cobra.Command, result *applier.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d migration(s), %d created, %d updated, %d deleted\n",
		result.RunID, len(result.MigrationsRun), len(result.Created), len(result.Updated), len(result.Deleted))
	for _, f := range result.CheckFindings {
		fmt.Fprintf(out, "  [%s] %s: %s\n", f.Severity, f.Object, f.Message)
	}
}
