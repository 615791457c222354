package config

import (
	"encoding/json"
	"fmt"
	"time"

	"minidfs/pkg/utils"

	"gopkg.in/yaml.v3"
)

// ByteSize accepts either a plain number of bytes or a human-friendly string
// such as "64MiB" in config files.
type ByteSize int64

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return b.set(raw)
}

func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return b.set(raw)
}

func (b *ByteSize) set(raw interface{}) error {
	switch v := raw.(type) {
	case float64:
		*b = ByteSize(v)
	case int:
		*b = ByteSize(v)
	case string:
		size, err := utils.ParseDataSize(v)
		if err != nil {
			return fmt.Errorf("invalid size: %w", err)
		}
		*b = ByteSize(size)
	case nil:
	default:
		return fmt.Errorf("size must be a number or string, got %T", v)
	}
	return nil
}

// Set parses a flag or environment value such as "128MiB".
func (b *ByteSize) Set(s string) error {
	return b.set(s)
}

func (b ByteSize) String() string {
	return utils.FormatDataSize(int64(b))
}

// Duration accepts Go duration strings ("5s") or a number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) set(raw interface{}) error {
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		*d = Duration(parsed)
	case nil:
	default:
		return fmt.Errorf("duration must be a number or string, got %T", v)
	}
	return nil
}

func (d *Duration) Set(s string) error {
	return d.set(s)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
