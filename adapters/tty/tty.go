// Package tty drives a room from an interactive terminal. It plays the
// part of the host runtime: players join, chat and leave by typing lines,
// and chat the room sends back is printed.
package tty

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	goruntime "runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/roomkit/adapters/memory"
	"github.com/artpar/roomkit/core/players"
	"github.com/artpar/roomkit/ports"
	"github.com/artpar/roomkit/room"
)

// Options configures a Channel.
type Options struct {
	In  io.Reader
	Out io.Writer

	// Prompt defaults to "roomkit> ".
	Prompt string

	// ShowStats prints timing and allocation after each line.
	ShowStats bool
}

// Channel is a REPL bound to one room and its in-memory host.
type Channel struct {
	room      *room.Room
	host      *memory.Host
	in        io.Reader
	out       io.Writer
	prompt    string
	running   bool
	showStats bool
}

// New creates a channel. The room must have been created on host.
func New(r *room.Room, host *memory.Host, opts Options) *Channel {
	c := &Channel{
		room:      r,
		host:      host,
		in:        opts.In,
		out:       opts.Out,
		prompt:    opts.Prompt,
		showStats: opts.ShowStats,
	}
	if c.prompt == "" {
		c.prompt = "roomkit> "
	}
	if c.out == nil {
		c.out = io.Discard
	}
	return c
}

func captureStats() goruntime.MemStats {
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)
	return m
}

// formatBytes formats bytes as human readable.
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func (c *Channel) printStats(duration time.Duration, before, after goruntime.MemStats) {
	memUsed := int64(after.Alloc) - int64(before.Alloc)
	if memUsed < 0 {
		memUsed = 0 // GC happened
	}
	fmt.Fprintf(c.out, "\033[90m  %v  %s", duration.Round(time.Microsecond), formatBytes(uint64(memUsed)))
	if gc := after.NumGC - before.NumGC; gc > 0 {
		fmt.Fprintf(c.out, "  %d GC", gc)
	}
	fmt.Fprint(c.out, "\033[0m\n")
}

// Run links the room and reads lines until EOF, quit, or ctx is done.
func (c *Channel) Run(ctx context.Context) error {
	c.running = true
	scanner := bufio.NewScanner(c.in)

	fmt.Fprintln(c.out, "roomkit interactive room")
	fmt.Fprintln(c.out, "Type 'help' for available commands, 'quit' to exit")
	fmt.Fprintln(c.out)

	c.room.HandleHostEvent(ctx, room.EventRoomLink)
	c.settle()

	for c.running && ctx.Err() == nil {
		fmt.Fprint(c.out, c.prompt)
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		before := captureStats()
		start := time.Now()

		err := c.Execute(ctx, line)
		c.settle()

		duration := time.Since(start)
		after := captureStats()

		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
		if c.showStats && c.running {
			c.printStats(duration, before, after)
		}
	}

	return scanner.Err()
}

// settle runs deferred room work and prints the chat it produced.
func (c *Channel) settle() {
	c.room.Loop().Drain(0)
	for _, m := range c.host.Drain() {
		if m.To == memory.Everyone {
			fmt.Fprintf(c.out, "[all] %s\n", m.Text)
			continue
		}
		name := "#" + strconv.Itoa(m.To)
		if p, ok := c.host.Player(m.To); ok {
			name = p.Name
		}
		fmt.Fprintf(c.out, "[to %s] %s\n", name, m.Text)
	}
}

// Execute runs one line.
func (c *Channel) Execute(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "quit", "exit", "q":
		c.running = false
		fmt.Fprintln(c.out, "Goodbye!")
		return nil
	case "help", "h", "?":
		c.showHelp()
		return nil
	case "join":
		return c.join(ctx, args)
	case "leave", "kick":
		return c.leave(ctx, args)
	case "chat", "say":
		return c.chat(ctx, args)
	case "team":
		return c.team(ctx, args)
	case "admin":
		return c.admin(ctx, args)
	case "players", "ls":
		c.listPlayers()
		return nil
	case "commands":
		c.listCommands()
		return nil
	case "methods":
		fmt.Fprintln(c.out, strings.Join(c.room.Methods(), "\n"))
		return nil
	case "state":
		return c.printJSON(c.room.State())
	case "call":
		return c.call(ctx, args)
	case "set":
		return c.set(ctx, args)
	case "event":
		return c.event(ctx, args)
	case "stats":
		c.showStats = !c.showStats
		if c.showStats {
			fmt.Fprintln(c.out, "Stats display enabled")
		} else {
			fmt.Fprintln(c.out, "Stats display disabled")
		}
		return nil
	default:
		return fmt.Errorf("unknown command: %s (try 'help')", cmd)
	}
}

func (c *Channel) showHelp() {
	fmt.Fprintln(c.out, `Host actions:
  join <name> [auth]        A player joins
  leave <id>                A player leaves
  chat <id> <message...>    A player sends chat
  team <id> <team>          Move a player (0 spectators, 1 red, 2 blue)
  admin <id> on|off         Toggle host admin
  event <name> [args...]    Dispatch any host event

Room inspection:
  players                   List players with their properties
  commands                  List registered commands
  methods                   List room methods
  state                     Print shared room state
  call <method> [args...]   Call a room method
  set <property> <id> <v>   Set a player property

  stats                     Toggle timing output
  quit                      Exit`)
}

func (c *Channel) join(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: join <name> [auth]")
	}
	auth := ""
	if len(args) > 1 {
		auth = args[1]
	}
	p := c.host.Join(args[0], auth)
	fmt.Fprintf(c.out, "%s joined as #%d\n", p.Name, p.ID)
	c.room.HandleHostEvent(ctx, room.EventPlayerJoin, p)
	return nil
}

func (c *Channel) leave(ctx context.Context, args []string) error {
	id, err := playerArg(args, "leave <id>")
	if err != nil {
		return err
	}
	p, ok := c.host.Remove(id)
	if !ok {
		return fmt.Errorf("no player #%d", id)
	}
	fmt.Fprintf(c.out, "%s left\n", p.Name)
	c.room.HandleHostEvent(ctx, room.EventPlayerLeave, p)
	return nil
}

func (c *Channel) chat(ctx context.Context, args []string) error {
	id, err := playerArg(args, "chat <id> <message...>")
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: chat <id> <message...>")
	}
	p, ok := c.host.Player(id)
	if !ok {
		return fmt.Errorf("no player #%d", id)
	}

	message := strings.Join(args[1:], " ")

	if c.room.HandleHostEvent(ctx, room.EventPlayerChat, p, message) {
		return c.host.Broadcast(p.Name + ": " + message)
	}
	return nil
}

func (c *Channel) team(ctx context.Context, args []string) error {
	id, err := playerArg(args, "team <id> <team>")
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: team <id> <team>")
	}
	team, err := strconv.Atoi(args[1])
	if err != nil || team < ports.TeamSpectators || team > ports.TeamBlue {
		return fmt.Errorf("invalid team %q", args[1])
	}
	p, ok := c.host.SetTeam(id, team)
	if !ok {
		return fmt.Errorf("no player #%d", id)
	}
	c.room.HandleHostEvent(ctx, "playerTeamChange", p)
	return nil
}

func (c *Channel) admin(ctx context.Context, args []string) error {
	id, err := playerArg(args, "admin <id> on|off")
	if err != nil {
		return err
	}
	if len(args) < 2 || (args[1] != "on" && args[1] != "off") {
		return fmt.Errorf("usage: admin <id> on|off")
	}
	p, ok := c.host.SetAdmin(id, args[1] == "on")
	if !ok {
		return fmt.Errorf("no player #%d", id)
	}
	c.room.HandleHostEvent(ctx, "playerAdminChange", p)
	return nil
}

func (c *Channel) listPlayers() {
	list := c.room.PlayerList(nil)
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No players.")
		return
	}
	for _, v := range list {
		fmt.Fprintf(c.out, "#%d %s team=%d", v.ID(), v.Name(), v.Team())
		for _, key := range extraKeys(v) {
			val, _ := v.Get(key)
			fmt.Fprintf(c.out, " %s=%v", key, val)
		}
		fmt.Fprintln(c.out)
	}
}

func extraKeys(v players.View) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		if !players.IsHostField(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (c *Channel) listCommands() {
	for _, cmd := range c.room.Commands(nil) {
		access := cmd.Access()
		if access == "" {
			access = "anyone"
		}
		fmt.Fprintf(c.out, "%-20s %-12s %s\n", strings.Join(cmd.Names(), ","), access, cmd.Description())
	}
}

func (c *Channel) call(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: call <method> [args...]")
	}
	values := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		values = append(values, parseValue(a))
	}
	result, err := c.room.Call(ctx, args[0], values...)
	if err != nil {
		return err
	}
	if result != nil {
		return c.printJSON(result)
	}
	return nil
}

func (c *Channel) set(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: set <property> <id> <value>")
	}
	id, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid player id %q", args[1])
	}
	return c.room.SetProperty(ctx, args[0], id, parseValue(strings.Join(args[2:], " ")))
}

func (c *Channel) event(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: event <name> [args...]")
	}
	values := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		values = append(values, parseValue(a))
	}
	ok := c.room.HandleHostEvent(ctx, args[0], values...)
	fmt.Fprintf(c.out, "%s -> %t\n", args[0], ok)
	return nil
}

func (c *Channel) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, string(data))
	return nil
}

func playerArg(args []string, usage string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid player id %q", args[0])
	}
	return id, nil
}

// parseValue reads a typed argument: JSON literals (numbers, booleans,
// null, quoted strings, objects) decode as such; anything else is a string.
func parseValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}
