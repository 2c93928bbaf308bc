package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/artpar/roomkit/adapters/hasher"
	"github.com/artpar/roomkit/adapters/sqlite"
	"github.com/artpar/roomkit/config"
)

var validateCheckDatabase bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the roomkit configuration file.

Checks:
  - YAML syntax is valid
  - Roles, access expressions and property names are consistent
  - Password entries look like bcrypt hashes
  - Database opens and migrates (optional)

Examples:
  roomkit validate
  roomkit validate --config /etc/roomkit/roomkit.yaml --check-database`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check that the database opens and migrates")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Fprintf(out, "  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	fmt.Fprintf(out, "  %s Roles: %v\n", checkMark, cfg.Room.Roles)
	fmt.Fprintf(out, "  %s Command prefix: %q\n", checkMark, cfg.Room.CommandPrefix)
	fmt.Fprintf(out, "  %s Player properties: %d\n", checkMark, len(cfg.Room.Player))
	fmt.Fprintf(out, "  %s Database: %s\n", checkMark, cfg.Database.DSN)

	roles := make([]string, 0, len(cfg.Auth.Passwords))
	for role := range cfg.Auth.Passwords {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		mark := checkMark
		if !hasher.IsHash(cfg.Auth.Passwords[role]) {
			mark = crossMark
		}
		fmt.Fprintf(out, "  %s Password for %s is a bcrypt hash\n", mark, role)
	}

	if validateCheckDatabase {
		if err := checkDatabase(cmd.Context(), cfg.Database.DSN); err != nil {
			fmt.Fprintf(out, "  %s Database migrates\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Database migrates\n", checkMark)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkDatabase(ctx context.Context, dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate(ctx)
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
