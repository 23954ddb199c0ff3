package picar

import (
	"fmt"
	"strings"
)

// Key is a decoded key identity. Raw key codes never leave the input source.
type Key int

const (
	// KeyUnknown is any key outside the driving set.
	KeyUnknown Key = iota
	KeyLeft
	KeyRight
	KeyForward
	KeyBackward
	KeyQuit
)

var keyNames = map[Key]string{
	KeyUnknown:  "unknown",
	KeyLeft:     "left",
	KeyRight:    "right",
	KeyForward:  "forward",
	KeyBackward: "backward",
	KeyQuit:     "quit",
}

func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("key(%d)", int(k))
}

// ParseKey maps a key name ("left", "forward", ...) to its Key.
func ParseKey(name string) (Key, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range keyNames {
		if k != KeyUnknown && n == name {
			return k, nil
		}
	}
	return KeyUnknown, fmt.Errorf("unknown key %q", name)
}

// UnmarshalYAML lets scripts and key maps name keys.
func (k *Key) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParseKey(name)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalYAML writes the key by name.
func (k Key) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// KeyPhase is whether a key went down or came up.
type KeyPhase int

const (
	Press KeyPhase = iota
	Release
)

func (p KeyPhase) String() string {
	if p == Release {
		return "release"
	}
	return "press"
}

// UnmarshalYAML accepts "press" and "release".
func (p *KeyPhase) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "press":
		*p = Press
	case "release":
		*p = Release
	default:
		return fmt.Errorf("unknown phase %q", name)
	}
	return nil
}

// MarshalYAML writes the phase by name.
func (p KeyPhase) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// KeyEvent is one key transition delivered by an InputSource.
type KeyEvent struct {
	Key   Key
	Phase KeyPhase
}

// PressOf returns a press event for k.
func PressOf(k Key) KeyEvent { return KeyEvent{Key: k, Phase: Press} }

// ReleaseOf returns a release event for k.
func ReleaseOf(k Key) KeyEvent { return KeyEvent{Key: k, Phase: Release} }

func (e KeyEvent) String() string {
	return e.Key.String() + ":" + e.Phase.String()
}

// InputSource delivers decoded key events. The channel stays open while the
// source is live; a closed channel means the operator is gone.
type InputSource interface {
	Events() <-chan KeyEvent
}
