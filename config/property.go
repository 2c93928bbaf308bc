package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/artpar/roomkit/core/players"
)

// PropertyConfig declares a player property in YAML.
type PropertyConfig struct {
	Default any
	Method  string
	Event   string
	Sync    bool
}

// propertyOptions is the option mapping as written. The engine's own key
// names (methodName, eventName, async) are accepted next to the short forms.
type propertyOptions struct {
	Default    any    `yaml:"default"`
	Method     string `yaml:"method"`
	MethodName string `yaml:"methodName"`
	Event      string `yaml:"event"`
	EventName  string `yaml:"eventName"`
	Sync       *bool  `yaml:"sync"`
	Async      *bool  `yaml:"async"`
}

var propertyKeys = map[string]bool{
	"default":    true,
	"method":     true,
	"methodName": true,
	"event":      true,
	"eventName":  true,
	"sync":       true,
	"async":      true,
}

// UnmarshalYAML accepts either the option mapping or a bare default value.
// A mapping with no option keys is a default value; one that mixes option
// keys with other keys is rejected.
func (p *PropertyConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		isOptions, err := classifyMapping(node)
		if err != nil {
			return err
		}
		if isOptions {
			return p.decodeOptions(node)
		}
	}

	var def any
	if err := node.Decode(&def); err != nil {
		return err
	}
	*p = PropertyConfig{Default: def}
	return nil
}

func (p *PropertyConfig) decodeOptions(node *yaml.Node) error {
	var raw propertyOptions
	if err := node.Decode(&raw); err != nil {
		return err
	}

	method, err := pickName("method", raw.Method, raw.MethodName)
	if err != nil {
		return err
	}
	event, err := pickName("event", raw.Event, raw.EventName)
	if err != nil {
		return err
	}

	sync := false
	switch {
	case raw.Sync != nil && raw.Async != nil && *raw.Sync == *raw.Async:
		return fmt.Errorf("property options: sync and async disagree")
	case raw.Sync != nil:
		sync = *raw.Sync
	case raw.Async != nil:
		sync = !*raw.Async
	}

	*p = PropertyConfig{Default: raw.Default, Method: method, Event: event, Sync: sync}
	return nil
}

func pickName(key, short, long string) (string, error) {
	if short != "" && long != "" && short != long {
		return "", fmt.Errorf("property options: %s %q and %sName %q disagree", key, short, key, long)
	}
	if short != "" {
		return short, nil
	}
	return long, nil
}

func classifyMapping(node *yaml.Node) (bool, error) {
	var known, unknown []string
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if propertyKeys[key] {
			known = append(known, key)
		} else {
			unknown = append(unknown, key)
		}
	}
	if len(known) > 0 && len(unknown) > 0 {
		return false, fmt.Errorf("line %d: property options: unknown key %q next to %q", node.Line, unknown[0], known[0])
	}
	return len(known) > 0, nil
}

// Options converts to the engine's property options.
func (p PropertyConfig) Options() players.PropertyOptions {
	return players.PropertyOptions{
		Default:    p.Default,
		MethodName: p.Method,
		EventName:  p.Event,
		Sync:       p.Sync,
	}
}
