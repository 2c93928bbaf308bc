// Package help lists the commands a player may run.
package help

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/roomkit/core/commands"
	"github.com/artpar/roomkit/core/players"
	"github.com/artpar/roomkit/room"
)

// Module returns the help module. It contributes "help" (alias "commands").
func Module() room.Module {
	return room.Module{
		Name: "help",
		Commands: []room.Command{{
			Names:       []string{"help", "commands"},
			Description: "List available commands, or describe one: help [command]",
			Execute:     execute,
		}},
	}
}

func execute(ctx context.Context, r *room.Room, caller players.View, args []string) (any, error) {
	if len(args) > 1 {
		return describe(r, caller, args[1])
	}

	names := make([]string, 0)
	for _, cmd := range r.CommandsFor(caller) {
		names = append(names, cmd.Name())
	}
	if len(names) == 0 {
		return "No commands available.", nil
	}
	return "Commands: " + strings.Join(names, ", "), nil
}

func describe(r *room.Room, caller players.View, name string) (string, error) {
	cmd, ok := r.Command(name)
	if !ok || !allowed(r, cmd, caller) {
		return "", fmt.Errorf("no help for %q", name)
	}

	var b strings.Builder
	b.WriteString(strings.Join(cmd.Names(), ", "))
	if desc := cmd.Description(); desc != "" {
		b.WriteString(": ")
		b.WriteString(desc)
	}
	return b.String(), nil
}

func allowed(r *room.Room, cmd *commands.Command, caller players.View) bool {
	return cmd.Allows(r.Rank(caller))
}
