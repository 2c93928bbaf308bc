package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/roomkit/adapters/clock"
	"github.com/artpar/roomkit/adapters/hasher"
	"github.com/artpar/roomkit/adapters/idgen"
	"github.com/artpar/roomkit/adapters/memory"
	"github.com/artpar/roomkit/adapters/sqlite"
	"github.com/artpar/roomkit/adapters/tty"
	"github.com/artpar/roomkit/bootstrap"
	"github.com/artpar/roomkit/config"
	"github.com/artpar/roomkit/core/loop"
	"github.com/artpar/roomkit/ports"
)

var (
	replPersist bool
	replStats   bool
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Run a room from the terminal",
	Long: `Run a room with an in-memory host you drive by typing.

Players join, chat and leave on your command; whatever the modules whisper
or broadcast is printed. Role assignments are kept in memory unless
--persist is given, in which case the configured database is used.

Examples:
  roomkit repl
  roomkit repl --persist --config dev.yaml

Interactive commands:
  join <name> [auth]       A player joins
  chat <id> <message...>   A player chats ("chat 1 !help")
  players                  List players and their properties
  help                     Show all commands
  quit                     Exit`,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)

	replCmd.Flags().BoolVar(&replPersist, "persist", false, "store role assignments in the configured database")
	replCmd.Flags().BoolVar(&replStats, "stats", false, "print timing after each line")
}

func runREPL(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}
	cfg.Logging.Format = "console"
	logger := bootstrap.SetupLogger(cfg.Logging, cmd.ErrOrStderr())

	var store ports.RoleStore = memory.NewRoleStore()
	if replPersist {
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		store = sqlite.NewRoleStore(db)
	}

	host := memory.NewHost()
	r, _, err := bootstrap.NewRoom(cfg, host, loop.New(logger), bootstrap.RoomDeps{
		Store:  store,
		Hasher: hasher.NewBcrypt(cfg.Auth.BcryptCost),
		Clock:  clock.Real{},
		IDs:    idgen.NewSequential("d"),
		Logger: logger,
	})
	if err != nil {
		return err
	}

	return tty.New(r, host, tty.Options{
		In:        cmd.InOrStdin(),
		Out:       cmd.OutOrStdout(),
		ShowStats: replStats,
	}).Run(cmd.Context())
}
