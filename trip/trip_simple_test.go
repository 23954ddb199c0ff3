package trip

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTrip_Core tests core Trip functionality
func TestTrip_Core(t *testing.T) {
	context := Context{
		"component": "control.steering",
		"angle":     95,
	}

	trip := NewTrip(ActuatorCommand, "turn failed", context)

	assert.Equal(t, ActuatorCommand, trip.Type)
	assert.Equal(t, "turn failed", trip.Message)
	assert.Equal(t, context, trip.Context)
	assert.Equal(t, Error, trip.Severity)
	assert.WithinDuration(t, time.Now(), trip.Timestamp, time.Second)

	assert.Contains(t, trip.Error(), "turn failed")
	assert.Contains(t, trip.Error(), ActuatorCommand)
	assert.Contains(t, trip.Error(), "error")
}

// TestTrip_Severities tests different severity levels
func TestTrip_Severities(t *testing.T) {
	stumble := NewStumble(Display, "frame dropped", nil)
	error_ := NewTrip(Persist, "disk full", nil)
	fall := NewFall(DeviceUnavailable, "no camera", nil)

	assert.Equal(t, Stumble, stumble.Severity)
	assert.Equal(t, Error, error_.Severity)
	assert.Equal(t, Fall, fall.Severity)

	assert.True(t, stumble.CanRecover())
	assert.False(t, error_.CanRecover())
	assert.False(t, fall.CanRecover())

	assert.False(t, stumble.IsFall())
	assert.False(t, error_.IsFall())
	assert.True(t, fall.IsFall())
}

// TestTrip_Methods tests trip methods
func TestTrip_Methods(t *testing.T) {
	trip := NewTrip("test", "Test message", Context{"key": "value"})

	trip.WithAttempt(2)
	assert.Equal(t, 2, trip.Attempt)

	trip.WithSeverity(Fall)
	assert.Equal(t, Fall, trip.Severity)

	detailed := trip.DetailedString()
	assert.Contains(t, detailed, "Test message")
	assert.Contains(t, detailed, "key: value")
	assert.Contains(t, detailed, "Attempt: 2")
}

func TestTrip_WrapAndMatch(t *testing.T) {
	cause := errors.New("i2c busy")
	tr := NewFall(SafetyStop, "stop refused", nil).Wrap(cause)
	err := fmt.Errorf("session: %w", tr)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, Is(err, SafetyStop))
	assert.False(t, Is(err, DeviceUnavailable))
	assert.False(t, Is(cause, SafetyStop))

	got, ok := As(err)
	require.True(t, ok)
	assert.Same(t, tr, got)
	assert.Contains(t, tr.Error(), "i2c busy")
}

// TestHandler_Basic tests basic Handler functionality
func TestHandler_Basic(t *testing.T) {
	handler := NewHandler("session", DefaultPolicy())

	assert.True(t, handler.ShouldContinue())

	handler.Record(NewStumble(ActuatorCommand, "busy", nil))
	assert.True(t, handler.ShouldContinue())
	assert.True(t, handler.HasStumbles())
	assert.False(t, handler.HasTrips())

	handler.Record(NewFall(SafetyStop, "stop refused", nil))
	assert.False(t, handler.ShouldContinue())
	assert.True(t, handler.HasTrips())

	assert.Equal(t, 1, handler.Count(ActuatorCommand))
	assert.Equal(t, 1, handler.Count(SafetyStop))
	assert.Contains(t, handler.Summary(), "1 trips, 1 stumbles")
	assert.Contains(t, handler.DetailedReport(), "stop refused")
}

func TestHandler_MaxStumbles(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxStumbles = 2
	handler := NewHandler("session", policy)

	for i := 0; i < 2; i++ {
		handler.Record(NewStumble(Display, "dropped", nil))
	}
	assert.True(t, handler.ShouldContinue())

	handler.Record(NewStumble(Display, "dropped", nil))
	assert.False(t, handler.ShouldContinue())
	assert.Equal(t, 2, handler.MaxStumbles())
}

func TestHandler_ConcurrentRecord(t *testing.T) {
	handler := NewHandler("session", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				handler.Record(NewStumble(UnrecognizedInput, "ignored", nil))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, handler.GetStumbles(), 400)
}

// TestPolicy_Default tests default policy
func TestPolicy_Default(t *testing.T) {
	policy := DefaultPolicy()

	assert.Equal(t, 0, policy.MaxStumbles)
	assert.Equal(t, 0, NewHandler("session", policy).MaxStumbles())

	rc, ok := NewHandler("session", policy).GetRetryConfig(SafetyStop)
	require.True(t, ok)
	assert.Equal(t, 1, rc.MaxRetries)
}

func TestRetryConfig_Delay(t *testing.T) {
	linear := RetryConfig{MaxRetries: 3, Backoff: 10 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, linear.Delay(3))

	exp := RetryConfig{MaxRetries: 3, Backoff: 10 * time.Millisecond, Exponential: true}
	assert.Equal(t, 10*time.Millisecond, exp.Delay(1))
	assert.Equal(t, 20*time.Millisecond, exp.Delay(2))
	assert.Equal(t, 40*time.Millisecond, exp.Delay(3))
}

// TestSeverity_String tests severity string representation
func TestSeverity_String(t *testing.T) {
	assert.Equal(t, "stumble", Stumble.String())
	assert.Equal(t, "error", Error.String())
	assert.Equal(t, "fall", Fall.String())
	assert.Equal(t, "unknown", Severity(42).String())
}
