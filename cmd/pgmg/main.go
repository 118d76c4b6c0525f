// Command pgmg reconciles a PostgreSQL database's schema against a
// directory of declarative DDL and a directory of ordered migrations.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
