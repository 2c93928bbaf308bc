package bootstrap

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/artpar/roomkit/config"
	"github.com/artpar/roomkit/core/loop"
	"github.com/artpar/roomkit/modules/auth"
	"github.com/artpar/roomkit/modules/chatcmd"
	"github.com/artpar/roomkit/modules/help"
	"github.com/artpar/roomkit/ports"
	"github.com/artpar/roomkit/room"
)

// RoomDeps are the collaborators a room needs besides its host and loop.
type RoomDeps struct {
	Store    ports.RoleStore
	Hasher   ports.Hasher
	Clock    ports.Clock
	IDs      ports.IDGenerator
	Observer ports.Observer
	Logger   zerolog.Logger

	// Extra modules bound after the built-in ones.
	Modules []room.Module
}

// NewRoom creates a room from configuration and binds the built-in modules:
// auth, chat commands and help.
func NewRoom(cfg *config.Config, host ports.Host, lp *loop.Loop, deps RoomDeps) (*room.Room, *auth.Auth, error) {
	r, err := room.New(host, lp, room.Config{
		Roles:         cfg.Room.Roles,
		Player:        cfg.Room.PropertyOptions(),
		State:         cfg.Room.State,
		FailureNotice: cfg.Room.FailureNotice,
		Logger:        deps.Logger,
		Observer:      deps.Observer,
		IDs:           deps.IDs,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create room: %w", err)
	}

	a, err := auth.New(auth.Options{
		Store:  deps.Store,
		Hasher: deps.Hasher,
		Clock:  deps.Clock,
		Logger: deps.Logger,
		Config: AuthConfig(cfg.Auth),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create auth: %w", err)
	}

	mods := []room.Module{
		a.Module(),
		chatcmd.Module(chatcmd.Options{
			Prefix: cfg.Room.CommandPrefix,
			Echo:   cfg.Room.EchoCommands,
		}),
		help.Module(),
	}
	mods = append(mods, deps.Modules...)

	if err := r.BindAll(mods...); err != nil {
		return nil, nil, err
	}
	return r, a, nil
}

// AuthConfig converts the auth section for the auth module.
func AuthConfig(c config.AuthConfig) auth.Config {
	return auth.Config{
		DefaultRole:  c.DefaultRole,
		Passwords:    c.Passwords,
		Static:       c.Static,
		ManageAccess: c.ManageAccess,
	}
}
