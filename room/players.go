package room

import (
	"context"
	"fmt"
	"math"

	"github.com/artpar/roomkit/core/players"
)

// Player returns the merged view of a player the host currently knows.
func (r *Room) Player(id int) (players.View, bool) {
	return r.players.View(id)
}

// PlayerList returns merged views of every player accepted by the room's
// filter, in host order.
func (r *Room) PlayerList(opts map[string]any) []players.View {
	raw := r.host.Players()
	list := make([]players.View, 0, len(raw))
	for _, p := range raw {
		v := r.players.Wrap(p)
		if r.filter(v, opts) {
			list = append(list, v)
		}
	}
	return list
}

// Teams groups the filtered player list by team. Bucket i holds players
// whose team is order[i]; the final bucket holds everyone else.
func (r *Room) Teams(order []int, opts map[string]any) [][]players.View {
	buckets := make([][]players.View, len(order)+1)
	for i := range buckets {
		buckets[i] = []players.View{}
	}

	index := make(map[int]int, len(order))
	for i, team := range order {
		if _, seen := index[team]; !seen {
			index[team] = i
		}
	}

	for _, p := range r.PlayerList(opts) {
		i, ok := index[p.Team()]
		if !ok {
			i = len(order)
		}
		buckets[i] = append(buckets[i], p)
	}
	return buckets
}

// DeclareProperty declares a player property and publishes its accessor in
// the method table. The accessor takes the player id followed by the
// setter's values.
func (r *Room) DeclareProperty(name string, opts players.PropertyOptions) (*players.Property, error) {
	prop, err := r.players.Declare(name, opts)
	if err != nil {
		return nil, err
	}
	if err := r.Method(prop.MethodName(), propertyAccessor(prop)); err != nil {
		return nil, err
	}
	return prop, nil
}

// Property returns a declared player property.
func (r *Room) Property(name string) (*players.Property, bool) {
	return r.players.Property(name)
}

// Properties returns every declared player property in declaration order.
func (r *Room) Properties() []*players.Property {
	return r.players.Properties()
}

// SetProperty writes a declared property for player id.
func (r *Room) SetProperty(ctx context.Context, name string, id int, values ...any) error {
	prop, ok := r.players.Property(name)
	if !ok {
		return fmt.Errorf("%w: %q is not declared", players.ErrInvalidProperty, name)
	}
	prop.Set(ctx, id, values...)
	return nil
}

func propertyAccessor(prop *players.Property) Method {
	return func(ctx context.Context, r *Room, args ...any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: missing player id", prop.MethodName())
		}
		id, ok := toID(args[0])
		if !ok {
			return nil, fmt.Errorf("%s: invalid player id %v", prop.MethodName(), args[0])
		}
		prop.Set(ctx, id, args[1:]...)
		return nil, nil
	}
}

func toID(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return playerID(v)
	}
}
