package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZakSingh/pgmg/internal/pgmgconfig"
	"github.com/ZakSingh/pgmg/internal/pgmglog"
)

// rootFlags holds the flags that are not pgmgconfig.Config fields (the
// config path and verbosity). The connection and directory flags that do
// override Config fields are bound into v with viper.BindPFlag so
// pgmgconfig.Load sees flags, then pgmg.toml, then its own defaults, in
// that precedence order — the same layering xataio-pgroll's cmd/flags
// package uses.
type rootFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	v := viper.New()

	root := &cobra.Command{
		Use:           "pgmg",
		Short:         "Declarative PostgreSQL schema reconciliation",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "pgmg.toml", "path to pgmg.toml")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().String("host", "", "database host (overrides config)")
	root.PersistentFlags().Int("port", 0, "database port (overrides config)")
	root.PersistentFlags().String("database", "", "database name (overrides config)")
	root.PersistentFlags().String("user", "", "database user (overrides config)")
	root.PersistentFlags().String("migrations-dir", "", "migrations directory (overrides config)")
	root.PersistentFlags().String("code-dir", "", "declarative schema directory (overrides config)")

	for _, name := range []string{"host", "port", "database", "user", "migrations-dir", "code-dir"} {
		_ = v.BindPFlag(mapstructureKey(name), root.PersistentFlags().Lookup(name))
	}

	root.AddCommand(
		newPlanCmd(flags, v),
		newApplyCmd(flags, v),
		newDotCmd(flags, v),
		newConfigCmd(flags),
	)
	return root
}

// mapstructureKey translates a kebab-case flag name to the snake_case
// mapstructure tag pgmgconfig.Config declares.
func mapstructureKey(flag string) string {
	switch flag {
	case "migrations-dir":
		return "migrations_dir"
	case "code-dir":
		return "code_dir"
	default:
		return flag
	}
}

func loadConfig(flags *rootFlags, v *viper.Viper) (pgmgconfig.Config, error) {
	return pgmgconfig.Load(flags.configPath, v)
}

func newLogger(flags *rootFlags) *pgmglog.Logger {
	level := pgmglog.LevelInfo
	if flags.verbose {
		level = pgmglog.LevelDebug
	}
	return pgmglog.Stderr(level)
}
