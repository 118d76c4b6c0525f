package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZakSingh/pgmg/internal/pgmgconfig"
)

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pgmg.toml",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a commented sample pgmg.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(flags.configPath); err == nil {
				return fmt.Errorf("%s already exists", flags.configPath)
			}
			if err := pgmgconfig.WriteSample(flags.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", flags.configPath)
			return nil
		},
	})
	return cmd
}
