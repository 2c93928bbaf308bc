package room

import (
	"context"

	"github.com/artpar/roomkit/core/commands"
	"github.com/artpar/roomkit/core/players"
)

// CommandFunc executes a chat command.
type CommandFunc func(ctx context.Context, r *Room, caller players.View, args []string) (any, error)

// Command describes a chat command contributed to the room.
type Command struct {
	Names       []string
	Access      string
	Description string
	Execute     CommandFunc
}

// AddCommand registers a command. Later registrations shadow earlier ones
// for any names they share.
func (r *Room) AddCommand(cmd Command) (*commands.Command, error) {
	def := commands.Definition{
		Names:       cmd.Names,
		Access:      cmd.Access,
		Description: cmd.Description,
	}
	if fn := cmd.Execute; fn != nil {
		def.Execute = func(ctx context.Context, caller players.View, args []string) (any, error) {
			return fn(ctx, r, caller, args)
		}
	}
	return r.commands.Register(def)
}

// Command resolves a command by any of its names.
func (r *Room) Command(name string) (*commands.Command, bool) {
	return r.commands.Resolve(name)
}

// Commands lists distinct reachable commands in registration order. A nil
// filter returns everything.
func (r *Room) Commands(filter func(*commands.Command) bool) []*commands.Command {
	return r.commands.List(filter)
}

// CommandsFor lists the commands caller is allowed to execute.
func (r *Room) CommandsFor(caller players.View) []*commands.Command {
	return r.commands.List(func(c *commands.Command) bool {
		return r.commands.Allowed(c, caller)
	})
}

// ExecuteCommand parses raw as "name arg1 arg2..." and runs it as caller.
func (r *Room) ExecuteCommand(ctx context.Context, caller players.View, raw string) (any, error) {
	return r.commands.Execute(ctx, caller, raw)
}

// Rank returns caller's role rank.
func (r *Room) Rank(caller players.View) int {
	return r.commands.Rank(caller)
}
