// Package chatcmd turns prefixed chat lines into command executions.
package chatcmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/roomkit/core/events"
	"github.com/artpar/roomkit/core/players"
	"github.com/artpar/roomkit/room"
)

// DefaultPrefix marks a chat line as a command.
const DefaultPrefix = "!"

// Options configures the module.
type Options struct {
	// Prefix defaults to DefaultPrefix.
	Prefix string

	// Echo leaves command lines visible in chat instead of vetoing them.
	Echo bool
}

// Module returns the chat-command module.
func Module(opts Options) room.Module {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return room.Module{
		Name: "chatcmd",
		Callbacks: map[string][]room.Callback{
			room.EventPlayerChat: {func(ctx context.Context, r *room.Room, args []any) error {
				return handleChat(ctx, r, prefix, opts.Echo, args)
			}},
		},
	}
}

func handleChat(ctx context.Context, r *room.Room, prefix string, echo bool, args []any) error {
	if len(args) < 2 {
		return nil
	}
	caller, ok := args[0].(players.View)
	if !ok {
		return nil
	}
	message, ok := args[1].(string)
	if !ok || !strings.HasPrefix(message, prefix) {
		return nil
	}

	line := strings.TrimPrefix(message, prefix)
	if strings.TrimSpace(line) == "" {
		return nil
	}

	result, err := r.ExecuteCommand(ctx, caller, line)
	if err != nil {
		logger := r.Logger()
		logger.Debug().Err(err).Int("player_id", caller.ID()).Msg("chat command rejected")
		if werr := r.Whisper(caller.ID(), err.Error()); werr != nil {
			return werr
		}
	} else if reply := format(result); reply != "" {
		if werr := r.Whisper(caller.ID(), reply); werr != nil {
			return werr
		}
	}

	if echo {
		return nil
	}
	return events.ErrVeto
}

func format(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, "\n")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
