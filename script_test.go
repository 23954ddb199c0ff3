package picar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan KeyEvent) []KeyEvent {
	t.Helper()
	var got []KeyEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("script did not close, got %v", got)
			return got
		}
	}
}

func TestScript_Steps(t *testing.T) {
	s := NewScript().Tap(KeyRight, 2).Hold(KeyForward, time.Second).Press(KeyQuit)

	assert.Equal(t, []ScriptStep{
		{Key: KeyRight, Phase: Press, Repeat: 2},
		{Key: KeyForward, Phase: Press},
		{Wait: time.Second},
		{Key: KeyForward, Phase: Release},
		{Key: KeyQuit, Phase: Press},
	}, s.Steps())
}

func TestScript_PlaysInOrder(t *testing.T) {
	s := NewScript().
		Tap(KeyLeft, 2).
		Hold(KeyBackward, time.Millisecond).
		Press(KeyQuit).
		CloseAtEnd()

	assert.Equal(t, []KeyEvent{
		PressOf(KeyLeft),
		PressOf(KeyLeft),
		PressOf(KeyBackward),
		ReleaseOf(KeyBackward),
		PressOf(KeyQuit),
	}, collect(t, s.Events()))
}

func TestScript_EventsStartsOnce(t *testing.T) {
	s := NewScript().Press(KeyRight).CloseAtEnd()
	first := s.Events()
	assert.Equal(t, first, s.Events())
	assert.Len(t, collect(t, first), 1)
}

func TestScript_CloseAbandonsPlayback(t *testing.T) {
	s := NewScript().Wait(time.Hour).Press(KeyRight)
	ch := s.Events()
	s.Close()
	s.Close()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestParseScript(t *testing.T) {
	s, err := ParseScript([]byte(`
gap: 1ms
close_at_end: true
steps:
  - key: right
    repeat: 2
  - wait: 1ms
  - key: forward
  - key: forward
    phase: release
  - key: quit
`))
	require.NoError(t, err)

	assert.Equal(t, []KeyEvent{
		PressOf(KeyRight),
		PressOf(KeyRight),
		PressOf(KeyForward),
		ReleaseOf(KeyForward),
		PressOf(KeyQuit),
	}, collect(t, s.Events()))
}

func TestParseScript_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no key or wait", "steps:\n  - repeat: 2\n"},
		{"negative repeat", "steps:\n  - key: left\n    repeat: -1\n"},
		{"unknown key", "steps:\n  - key: jump\n"},
		{"unknown phase", "steps:\n  - key: left\n    phase: hold\n"},
		{"unknown field", "steps:\n  - key: left\n    speed: 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScript([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drive.yaml")
	require.NoError(t, os.WriteFile(path, []byte("close_at_end: true\nsteps:\n  - key: quit\n"), 0644))

	s, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, []KeyEvent{PressOf(KeyQuit)}, collect(t, s.Events()))

	_, err = LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	for _, k := range []Key{KeyLeft, KeyRight, KeyForward, KeyBackward, KeyQuit} {
		parsed, err := ParseKey(" " + k.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	parsed, err := ParseKey("LEFT")
	require.NoError(t, err)
	assert.Equal(t, KeyLeft, parsed)

	_, err = ParseKey("unknown")
	assert.Error(t, err)
	_, err = ParseKey("space")
	assert.Error(t, err)
}

func TestKeyEvent_String(t *testing.T) {
	assert.Equal(t, "forward:press", PressOf(KeyForward).String())
	assert.Equal(t, "left:release", ReleaseOf(KeyLeft).String())
	assert.Equal(t, "key(42)", Key(42).String())
}
