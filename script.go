package picar

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// Script is an InputSource that plays a fixed sequence of key events.
//
// Each call appends a step; playback starts on the first Events call.
// After the last step the channel stays open unless CloseAtEnd was set.
//
// Example:
//
//	script := picar.NewScript().
//		WithGap(10 * time.Millisecond).
//		Tap(picar.KeyRight, 3).
//		Hold(picar.KeyForward, 500*time.Millisecond).
//		Press(picar.KeyQuit)
type Script struct {
	steps      []ScriptStep
	gap        time.Duration
	closeAtEnd bool

	once   sync.Once
	events chan KeyEvent
	done   chan struct{}
	stop   sync.Once
}

// ScriptStep is one event, or a pause when Key is unset and Wait is positive.
type ScriptStep struct {
	Key    Key           `yaml:"key,omitempty"`
	Phase  KeyPhase      `yaml:"phase,omitempty"`
	Repeat int           `yaml:"repeat,omitempty"`
	Wait   time.Duration `yaml:"wait,omitempty"`
}

// NewScript returns an empty script.
func NewScript() *Script {
	return &Script{
		events: make(chan KeyEvent),
		done:   make(chan struct{}),
	}
}

// WithGap sets a pause between consecutive events.
func (s *Script) WithGap(d time.Duration) *Script {
	s.gap = d
	return s
}

// CloseAtEnd closes the event channel after the last step.
func (s *Script) CloseAtEnd() *Script {
	s.closeAtEnd = true
	return s
}

// Press appends a key press.
func (s *Script) Press(k Key) *Script {
	s.steps = append(s.steps, ScriptStep{Key: k, Phase: Press})
	return s
}

// Release appends a key release.
func (s *Script) Release(k Key) *Script {
	s.steps = append(s.steps, ScriptStep{Key: k, Phase: Release})
	return s
}

// Tap appends n presses of k.
func (s *Script) Tap(k Key, n int) *Script {
	s.steps = append(s.steps, ScriptStep{Key: k, Phase: Press, Repeat: n})
	return s
}

// Hold appends a press of k, a pause of d and a release of k.
func (s *Script) Hold(k Key, d time.Duration) *Script {
	return s.Press(k).Wait(d).Release(k)
}

// Wait appends a pause.
func (s *Script) Wait(d time.Duration) *Script {
	s.steps = append(s.steps, ScriptStep{Wait: d})
	return s
}

// Steps returns a copy of the script's steps.
func (s *Script) Steps() []ScriptStep {
	return append([]ScriptStep(nil), s.steps...)
}

// Events starts playback once and returns the event channel.
func (s *Script) Events() <-chan KeyEvent {
	s.once.Do(func() {
		go s.play()
	})
	return s.events
}

// Close abandons playback. Pending events are dropped.
func (s *Script) Close() {
	s.stop.Do(func() { close(s.done) })
}

func (s *Script) play() {
	if s.closeAtEnd {
		defer close(s.events)
	}

	for _, step := range s.steps {
		if step.Key == KeyUnknown && step.Wait > 0 {
			if !s.sleep(step.Wait) {
				return
			}
			continue
		}
		if step.Wait > 0 && !s.sleep(step.Wait) {
			return
		}

		n := max(step.Repeat, 1)
		for i := 0; i < n; i++ {
			select {
			case s.events <- KeyEvent{Key: step.Key, Phase: step.Phase}:
			case <-s.done:
				return
			}
			if s.gap > 0 && !s.sleep(s.gap) {
				return
			}
		}
	}
}

func (s *Script) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.done:
		return false
	}
}

// scriptFile is the YAML layout of a script file.
type scriptFile struct {
	Gap        time.Duration `yaml:"gap"`
	CloseAtEnd bool          `yaml:"close_at_end"`
	Steps      []ScriptStep  `yaml:"steps"`
}

// LoadScript reads a script from a YAML file:
//
//	gap: 50ms
//	steps:
//	  - key: right
//	    repeat: 3
//	  - key: forward
//	  - wait: 1s
//	  - key: forward
//	    phase: release
//	  - key: quit
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScript(data)
}

// ParseScript decodes a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var f scriptFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	s := NewScript().WithGap(f.Gap)
	s.closeAtEnd = f.CloseAtEnd
	for i, step := range f.Steps {
		if step.Key == KeyUnknown && step.Wait <= 0 {
			return nil, fmt.Errorf("script step %d: needs a key or a wait", i+1)
		}
		if step.Repeat < 0 {
			return nil, fmt.Errorf("script step %d: negative repeat", i+1)
		}
		s.steps = append(s.steps, step)
	}
	return s, nil
}
