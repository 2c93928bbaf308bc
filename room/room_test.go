package room_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/roomkit/adapters/memory"
	"github.com/artpar/roomkit/core/commands"
	"github.com/artpar/roomkit/core/events"
	"github.com/artpar/roomkit/core/loop"
	"github.com/artpar/roomkit/core/players"
	"github.com/artpar/roomkit/ports"
	"github.com/artpar/roomkit/room"
)

func newRoom(t *testing.T, cfg room.Config) (*room.Room, *memory.Host, *loop.Loop) {
	t.Helper()
	host := memory.NewHost()
	lp := loop.New(zerolog.Nop())
	if cfg.Roles == nil {
		cfg.Roles = []string{"player", "admin", "host"}
	}
	cfg.Logger = zerolog.Nop()
	r, err := room.New(host, lp, cfg)
	require.NoError(t, err)
	return r, host, lp
}

func TestNew_Validation(t *testing.T) {
	lp := loop.New(zerolog.Nop())
	host := memory.NewHost()

	_, err := room.New(nil, lp, room.Config{Roles: []string{"player"}})
	assert.Error(t, err)

	_, err = room.New(host, nil, room.Config{Roles: []string{"player"}})
	assert.Error(t, err)

	_, err = room.New(host, lp, room.Config{Roles: []string{"player", "player"}})
	assert.Error(t, err)

	_, err = room.New(host, lp, room.Config{
		Roles:  []string{"player"},
		Player: map[string]players.PropertyOptions{"name": {}},
	})
	assert.ErrorIs(t, err, players.ErrInvalidProperty)
}

func TestRoomLinkDispatchesReady(t *testing.T) {
	r, _, _ := newRoom(t, room.Config{})
	ctx := context.Background()

	ready := 0
	_, err := r.On("ready", func(ctx context.Context, r *room.Room, args []any) error {
		ready++
		return nil
	})
	require.NoError(t, err)

	assert.True(t, r.HandleHostEvent(ctx, "room-link"))
	assert.Equal(t, 1, ready)
}

func TestDispatch_NoListeners(t *testing.T) {
	r, host, _ := newRoom(t, room.Config{})
	assert.True(t, r.Dispatch(context.Background(), "nobodyListens", 1, 2))
	assert.Empty(t, host.Messages())
}

func TestDispatch_FailureIsolation(t *testing.T) {
	r, host, _ := newRoom(t, room.Config{})
	ctx := context.Background()

	var ranB bool
	_, err := r.On("tick",
		func(ctx context.Context, r *room.Room, args []any) error {
			return errors.New("boom")
		},
		func(ctx context.Context, r *room.Room, args []any) error {
			ranB = true
			return nil
		},
	)
	require.NoError(t, err)

	assert.True(t, r.Dispatch(ctx, "tick"))
	assert.True(t, ranB)

	msgs := host.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, memory.Everyone, msgs[0].To)
	assert.Equal(t, room.DefaultFailureNotice, msgs[0].Text)
}

func TestDispatch_PanicIsReportedWithCustomNotice(t *testing.T) {
	r, host, _ := newRoom(t, room.Config{FailureNotice: "oops"})

	_, err := r.On("tick", func(ctx context.Context, r *room.Room, args []any) error {
		panic("bad")
	})
	require.NoError(t, err)

	assert.True(t, r.Dispatch(context.Background(), "tick"))
	msgs := host.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "oops", msgs[0].Text)
}

func TestDispatch_VetoAndUnbind(t *testing.T) {
	r, _, _ := newRoom(t, room.Config{})
	ctx := context.Background()

	unbind, err := r.On("playerChat", func(ctx context.Context, r *room.Room, args []any) error {
		return events.ErrVeto
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Listeners("playerChat"))

	assert.False(t, r.Dispatch(ctx, "playerChat"))

	unbind()
	assert.Equal(t, 0, r.Listeners("playerChat"))
	assert.True(t, r.Dispatch(ctx, "playerChat"))
}

func TestOn_RejectsNilCallback(t *testing.T) {
	r, _, _ := newRoom(t, room.Config{})
	_, err := r.On("tick", nil)
	assert.ErrorIs(t, err, events.ErrInvalidHandler)
}

func TestMethods(t *testing.T) {
	r, _, _ := newRoom(t, room.Config{})
	ctx := context.Background()

	_, err := r.Call(ctx, "greet")
	assert.ErrorIs(t, err, room.ErrMethodNotFound)

	require.NoError(t, r.Method("greet", func(ctx context.Context, r *room.Room, args ...any) (any, error) {
		return "hi", nil
	}))
	require.NoError(t, r.Method("greet", func(ctx context.Context, r *room.Room, args ...any) (any, error) {
		return "hello " + args[0].(string), nil
	}))

	got, err := r.Call(ctx, "greet", "bob")
	require.NoError(t, err)
	assert.Equal(t, "hello bob", got)
	assert.True(t, r.HasMethod("greet"))
	assert.Contains(t, r.Methods(), "greet")

	assert.ErrorIs(t, r.Method("", nil), room.ErrInvalidMethod)
	assert.ErrorIs(t, r.Method("x", nil), room.ErrInvalidMethod)
}

func TestPropertyAccessor_ChangeEvents(t *testing.T) {
	r, host, lp := newRoom(t, room.Config{
		Player: map[string]players.PropertyOptions{"afk": {Default: false}},
	})
	ctx := context.Background()
	p := host.Join("alice", "")

	var changes []players.View
	_, err := r.On("playerAfkChange", func(ctx context.Context, r *room.Room, args []any) error {
		changes = append(changes, args[0].(players.View))
		return nil
	})
	require.NoError(t, err)

	require.True(t, r.HasMethod("setPlayerAfk"))

	// Equal value: no event.
	_, err = r.Call(ctx, "setPlayerAfk", p.ID, false)
	require.NoError(t, err)
	lp.RunPending()
	assert.Empty(t, changes)

	// Async: not visible until the next quantum.
	_, err = r.Call(ctx, "setPlayerAfk", p.ID, true)
	require.NoError(t, err)
	v, _ := r.Player(p.ID)
	assert.Equal(t, false, v["afk"])

	lp.RunPending()
	require.Len(t, changes, 1)
	assert.Equal(t, true, changes[0]["afk"])
	assert.Equal(t, "alice", changes[0].Name())

	v, _ = r.Player(p.ID)
	assert.Equal(t, true, v["afk"])
}

func TestPropertyAccessor_BadArguments(t *testing.T) {
	r, _, _ := newRoom(t, room.Config{
		Player: map[string]players.PropertyOptions{"afk": {Default: false}},
	})
	ctx := context.Background()

	_, err := r.Call(ctx, "setPlayerAfk")
	assert.Error(t, err)
	_, err = r.Call(ctx, "setPlayerAfk", "one", true)
	assert.Error(t, err)

	assert.ErrorIs(t, r.SetProperty(ctx, "missing", 1, true), players.ErrInvalidProperty)
}

func TestPlayerLeave_RecordLivesUntilNextQuantum(t *testing.T) {
	r, host, lp := newRoom(t, room.Config{
		Player: map[string]players.PropertyOptions{"score": {Default: 0, Sync: true}},
	})
	ctx := context.Background()
	p := host.Join("alice", "")

	require.NoError(t, r.SetProperty(ctx, "score", p.ID, 7))

	var seen any
	_, err := r.On("playerLeave", func(ctx context.Context, r *room.Room, args []any) error {
		seen = args[0].(players.View)["score"]
		return nil
	})
	require.NoError(t, err)

	raw, _ := host.Remove(p.ID)
	r.HandleHostEvent(ctx, "playerLeave", raw)
	assert.Equal(t, 7, seen)

	// Same quantum: record still there.
	host.Add(raw)
	v, ok := r.Player(p.ID)
	require.True(t, ok)
	assert.Equal(t, 7, v["score"])

	// Next quantum: record gone, recreated from defaults.
	lp.RunPending()
	v, ok = r.Player(p.ID)
	require.True(t, ok)
	assert.Equal(t, 0, v["score"])
}

func TestHandleHostEvent_WrapsPlayers(t *testing.T) {
	r, host, _ := newRoom(t, room.Config{
		Player: map[string]players.PropertyOptions{"afk": {Default: false}},
	})
	p := host.Join("alice", "auth-a")

	var got []any
	_, err := r.On("playerJoin", func(ctx context.Context, r *room.Room, args []any) error {
		got = args
		return nil
	})
	require.NoError(t, err)

	r.HandleHostEvent(context.Background(), "playerJoin", p, "extra")
	require.Len(t, got, 2)
	v, ok := got[0].(players.View)
	require.True(t, ok)
	assert.Equal(t, "alice", v.Name())
	assert.Equal(t, "auth-a", v.Auth())
	assert.Equal(t, false, v["afk"])
	assert.Equal(t, "extra", got[1])
}

func TestExecuteCommand(t *testing.T) {
	r, host, _ := newRoom(t, room.Config{
		Player: map[string]players.PropertyOptions{room.RoleProperty: {Default: "player", Sync: true}},
	})
	ctx := context.Background()

	cmd, err := r.AddCommand(room.Command{
		Names:  []string{"kick", "k"},
		Access: ">=admin",
		Execute: func(ctx context.Context, r *room.Room, caller players.View, args []string) (any, error) {
			return args, nil
		},
	})
	require.NoError(t, err)

	byAlias, ok := r.Command("K")
	require.True(t, ok)
	assert.Same(t, cmd, byAlias)

	p := host.Join("alice", "")
	caller, _ := r.Player(p.ID)

	_, err = r.ExecuteCommand(ctx, caller, "nosuch arg1")
	assert.ErrorIs(t, err, commands.ErrNotFound)

	_, err = r.ExecuteCommand(ctx, caller, "kick 2")
	assert.ErrorIs(t, err, commands.ErrAccessDenied)
	assert.Empty(t, r.CommandsFor(caller))

	require.NoError(t, r.SetProperty(ctx, room.RoleProperty, p.ID, "admin"))
	caller, _ = r.Player(p.ID)
	assert.Equal(t, 1, r.Rank(caller))

	out, err := r.ExecuteCommand(ctx, caller, "K 2")
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "2"}, out)
	assert.Len(t, r.CommandsFor(caller), 1)
	assert.Len(t, r.Commands(nil), 1)
}

func TestPlayerListAndTeams(t *testing.T) {
	r, host, _ := newRoom(t, room.Config{
		Filter: func(p players.View, opts map[string]any) bool {
			if skip, ok := opts["skipAdmins"].(bool); ok && skip {
				return !p.Admin()
			}
			return true
		},
	})

	a := host.Join("a", "")
	b := host.Join("b", "")
	c := host.Join("c", "")
	host.Join("d", "")
	host.SetTeam(a.ID, ports.TeamRed)
	host.SetTeam(b.ID, ports.TeamBlue)
	host.SetTeam(c.ID, ports.TeamRed)
	host.SetAdmin(c.ID, true)

	assert.Len(t, r.PlayerList(nil), 4)
	assert.Len(t, r.PlayerList(map[string]any{"skipAdmins": true}), 3)

	teams := r.Teams([]int{ports.TeamRed, ports.TeamBlue}, nil)
	require.Len(t, teams, 3)
	assert.Len(t, teams[0], 2)
	assert.Len(t, teams[1], 1)
	assert.Len(t, teams[2], 1)
	assert.Equal(t, "d", teams[2][0].Name())

	teams = r.Teams(nil, map[string]any{"skipAdmins": true})
	require.Len(t, teams, 1)
	assert.Len(t, teams[0], 3)
}

func TestBind(t *testing.T) {
	r, _, _ := newRoom(t, room.Config{State: map[string]any{
		"mode":   "classic",
		"limits": map[string]any{"score": 3},
	}})
	ctx := context.Background()

	var calls []string
	err := r.Bind(room.Module{
		Name: "game",
		DefaultState: map[string]any{
			"mode":   "futsal",
			"paused": false,
			"limits": map[string]any{"score": 5, "time": 180},
		},
		Player: map[string]players.PropertyOptions{"goals": {Default: 0}},
		Methods: map[string]room.Method{
			"pause": func(ctx context.Context, r *room.Room, args ...any) (any, error) {
				r.State()["paused"] = true
				return nil, nil
			},
		},
		Callbacks: map[string][]room.Callback{
			"gameStart": {
				func(ctx context.Context, r *room.Room, args []any) error { calls = append(calls, "first"); return nil },
				func(ctx context.Context, r *room.Room, args []any) error { calls = append(calls, "second"); return nil },
			},
		},
		Commands: []room.Command{{
			Names:   []string{"pause"},
			Execute: func(ctx context.Context, r *room.Room, caller players.View, args []string) (any, error) { return nil, nil },
		}},
	})
	require.NoError(t, err)

	r.Dispatch(ctx, "game-start")
	assert.Equal(t, []string{"first", "second"}, calls)

	st := r.State()
	assert.Equal(t, "classic", st["mode"])
	assert.Equal(t, false, st["paused"])
	assert.Equal(t, map[string]any{"score": 3, "time": 180}, st["limits"])

	_, err = r.Call(ctx, "pause")
	require.NoError(t, err)
	assert.Equal(t, true, r.State()["paused"])

	assert.True(t, r.HasMethod("setPlayerGoals"))
	_, ok := r.Command("pause")
	assert.True(t, ok)
}

func TestBind_ErrorKeepsEarlierParts(t *testing.T) {
	r, _, _ := newRoom(t, room.Config{})

	err := r.Bind(room.Module{
		Name: "broken",
		Methods: map[string]room.Method{
			"ok": func(ctx context.Context, r *room.Room, args ...any) (any, error) { return nil, nil },
		},
		Commands: []room.Command{{Names: []string{"x"}, Access: ">=wizard",
			Execute: func(ctx context.Context, r *room.Room, caller players.View, args []string) (any, error) { return nil, nil },
		}},
		DefaultState: map[string]any{"never": true},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, commands.ErrInvalidDefinition)
	assert.Contains(t, err.Error(), "broken")

	assert.True(t, r.HasMethod("ok"))
	assert.NotContains(t, r.State(), "never")
}

func TestRoomsAreIndependent(t *testing.T) {
	r1, _, _ := newRoom(t, room.Config{})
	r2, _, _ := newRoom(t, room.Config{})

	_, err := r1.On("tick", func(ctx context.Context, r *room.Room, args []any) error { return nil })
	require.NoError(t, err)
	require.NoError(t, r1.Method("m", func(ctx context.Context, r *room.Room, args ...any) (any, error) { return nil, nil }))

	assert.Equal(t, 0, r2.Listeners("tick"))
	assert.False(t, r2.HasMethod("m"))
}
