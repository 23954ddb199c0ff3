// Package trip classifies the failures a driving session runs into.
//
// A session "trips" when something goes wrong. Most trips are stumbles: an
// actuator was briefly busy, a frame could not be shown or saved, a key
// meant nothing. The session logs them and keeps driving. A fall is a trip
// the session cannot drive through (a device that never came up, a safety
// stop the motor refused twice) and it forces the session to stop.
package trip

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Trip types used across the session.
const (
	// DeviceUnavailable means the camera or actuator failed to initialize.
	DeviceUnavailable = "device_unavailable"
	// ActuatorCommand means a single turn/speed/drive call failed.
	ActuatorCommand = "actuator_command"
	// SafetyStop means a stop command failed after its retries.
	SafetyStop = "safety_stop"
	// StreamEnded means the camera reported end of stream.
	StreamEnded = "stream_ended"
	// UnrecognizedInput means a key outside the known set arrived.
	UnrecognizedInput = "unrecognized_input"
	// Display means a frame could not be rendered.
	Display = "display"
	// Persist means a captured sample could not be written.
	Persist = "persist"
	// Panic means a flow panicked and was recovered.
	Panic = "panic"
)

// Trip is a categorized session failure with context.
//
// Example usage:
//
//	err := trip.NewStumble(trip.ActuatorCommand, "turn failed",
//	    trip.Context{"angle": 95}).Wrap(cause)
//
//	if !err.CanRecover() {
//	    // stop the session
//	}
type Trip struct {
	Type      string    // Error category for systematic handling
	Message   string    // Human-readable description
	Context   Context   // Additional debugging information
	Timestamp time.Time // When the error occurred
	Attempt   int       // Which attempt/retry this was
	Severity  Severity  // How serious this error is
	Cause     error     // Underlying error, if any
}

// Context provides structured debugging information for trips.
type Context map[string]interface{}

// Severity indicates how serious a trip is and how it should be handled.
type Severity int

const (
	// Stumble is recovered where it happens. The session keeps driving.
	Stumble Severity = iota

	// Error is significant but does not stop the session by itself.
	Error

	// Fall forces the session to stop.
	Fall
)

func (s Severity) String() string {
	switch s {
	case Stumble:
		return "stumble"
	case Error:
		return "error"
	case Fall:
		return "fall"
	default:
		return "unknown"
	}
}

// MarshalYAML renders the severity by name in session reports.
func (s Severity) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// NewTrip creates a new trip with the current timestamp.
func NewTrip(errorType, message string, context Context) *Trip {
	return &Trip{
		Type:      errorType,
		Message:   message,
		Context:   context,
		Timestamp: time.Now(),
		Severity:  Error,
	}
}

// NewStumble creates a new trip with Stumble severity.
func NewStumble(errorType, message string, context Context) *Trip {
	return NewTrip(errorType, message, context).WithSeverity(Stumble)
}

// NewFall creates a new trip with Fall severity.
func NewFall(errorType, message string, context Context) *Trip {
	return NewTrip(errorType, message, context).WithSeverity(Fall)
}

// WithAttempt sets the attempt number for this error.
func (t *Trip) WithAttempt(attemptNumber int) *Trip {
	t.Attempt = attemptNumber
	return t
}

// WithSeverity sets the severity level for this error.
func (t *Trip) WithSeverity(severity Severity) *Trip {
	t.Severity = severity
	return t
}

// Wrap records the underlying error.
func (t *Trip) Wrap(cause error) *Trip {
	t.Cause = cause
	return t
}

// Error implements the error interface.
func (t *Trip) Error() string {
	if t.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", t.Type, t.Severity, t.Message, t.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", t.Type, t.Severity, t.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (t *Trip) Unwrap() error {
	return t.Cause
}

// CanRecover returns true if the session can keep driving despite this trip.
func (t *Trip) CanRecover() bool {
	return t.Severity == Stumble
}

// IsFall returns true if this trip must stop the session.
func (t *Trip) IsFall() bool {
	return t.Severity == Fall
}

// DetailedString returns a comprehensive error description with context.
func (t *Trip) DetailedString() string {
	var details strings.Builder

	details.WriteString(t.Error())
	details.WriteString(fmt.Sprintf("\n  Time: %s", t.Timestamp.Format("15:04:05.000")))

	if t.Attempt > 0 {
		details.WriteString(fmt.Sprintf("\n  Attempt: %d", t.Attempt))
	}

	if len(t.Context) > 0 {
		keys := make([]string, 0, len(t.Context))
		for key := range t.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		details.WriteString("\n  Context:")
		for _, key := range keys {
			details.WriteString(fmt.Sprintf("\n    %s: %v", key, t.Context[key]))
		}
	}

	return details.String()
}

// Is reports whether err wraps a trip of the given type.
func Is(err error, errorType string) bool {
	var t *Trip
	if !errors.As(err, &t) {
		return false
	}
	return t.Type == errorType
}

// As returns the first trip wrapped in err.
func As(err error) (*Trip, bool) {
	var t *Trip
	ok := errors.As(err, &t)
	return t, ok
}

// Handler collects the trips of one session. It is safe for concurrent use;
// the control channels and the capture loop record into the same handler.
type Handler struct {
	mu        sync.Mutex
	component string  // Component name, e.g. "session"
	trips     []*Trip // Errors and falls in chronological order
	stumbles  []*Trip // Minor issues in chronological order
	policy    *Policy // How to handle different error types
}

// Policy defines how different types and severities of trips are handled.
type Policy struct {
	// MaxStumbles escalates to a fall once more stumbles accumulate
	// (0 = unlimited). Falls always stop the session.
	MaxStumbles int

	// RetryPolicy defines retry behavior for different trip types
	RetryPolicy map[string]RetryConfig
}

// RetryConfig defines retry behavior for specific trip types.
type RetryConfig struct {
	MaxRetries  int           // Maximum retry attempts
	Backoff     time.Duration // Delay between retries
	Exponential bool          // Whether to use exponential backoff
}

// Delay returns the wait before the given retry attempt (1-based).
func (rc RetryConfig) Delay(attempt int) time.Duration {
	if !rc.Exponential || attempt <= 1 {
		return rc.Backoff
	}
	return rc.Backoff << (attempt - 1)
}

// DefaultPolicy returns the session's default trip policy: a safety stop is
// retried once and stumbles are unlimited.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxStumbles: 0,
		RetryPolicy: map[string]RetryConfig{
			SafetyStop: {MaxRetries: 1, Backoff: 20 * time.Millisecond},
		},
	}
}

// NewHandler creates a new trip handler for a specific component.
func NewHandler(component string, policy *Policy) *Handler {
	if policy == nil {
		policy = DefaultPolicy()
	}

	return &Handler{
		component: component,
		trips:     make([]*Trip, 0),
		stumbles:  make([]*Trip, 0),
		policy:    policy,
	}
}

// Record adds a trip to the handler's collection.
func (h *Handler) Record(trip *Trip) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if trip.Severity == Stumble {
		h.stumbles = append(h.stumbles, trip)
	} else {
		h.trips = append(h.trips, trip)
	}
}

// ShouldContinue reports whether the session may keep driving: no fall was
// recorded and the stumble budget is not spent.
func (h *Handler) ShouldContinue() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, trip := range h.trips {
		if trip.IsFall() {
			return false
		}
	}

	if h.policy.MaxStumbles > 0 && len(h.stumbles) > h.policy.MaxStumbles {
		return false
	}

	return true
}

// HasTrips returns true if any errors (non-stumbles) have been recorded.
func (h *Handler) HasTrips() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.trips) > 0
}

// HasStumbles returns true if any stumbles have been recorded.
func (h *Handler) HasStumbles() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stumbles) > 0
}

// GetTrips returns a copy of all recorded errors.
func (h *Handler) GetTrips() []*Trip {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Trip(nil), h.trips...)
}

// GetStumbles returns a copy of all recorded stumbles.
func (h *Handler) GetStumbles() []*Trip {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Trip(nil), h.stumbles...)
}

// Count returns how many trips of the given type were recorded.
func (h *Handler) Count(errorType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, t := range h.trips {
		if t.Type == errorType {
			n++
		}
	}
	for _, t := range h.stumbles {
		if t.Type == errorType {
			n++
		}
	}
	return n
}

// MaxStumbles returns the policy's stumble budget (0 = unlimited).
func (h *Handler) MaxStumbles() int {
	return h.policy.MaxStumbles
}

// GetRetryConfig returns the retry configuration for a specific trip type.
func (h *Handler) GetRetryConfig(errorType string) (RetryConfig, bool) {
	config, exists := h.policy.RetryPolicy[errorType]
	return config, exists
}

// Summary provides a concise overview of all trips and stumbles.
func (h *Handler) Summary() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.trips) == 0 && len(h.stumbles) == 0 {
		return fmt.Sprintf("[%s] No issues during session", h.component)
	}

	return fmt.Sprintf("[%s] %d trips, %d stumbles",
		h.component, len(h.trips), len(h.stumbles))
}

// DetailedReport provides a comprehensive report of all issues.
func (h *Handler) DetailedReport() string {
	trips := h.GetTrips()
	stumbles := h.GetStumbles()

	var report strings.Builder

	report.WriteString(fmt.Sprintf("=== %s Component Report ===\n", h.component))
	report.WriteString(h.Summary() + "\n")

	if len(trips) > 0 {
		report.WriteString("\nTrips:\n")
		for i, trip := range trips {
			report.WriteString(fmt.Sprintf("%d. %s\n", i+1, trip.DetailedString()))
		}
	}

	if len(stumbles) > 0 {
		report.WriteString("\nStumbles:\n")
		for i, stumble := range stumbles {
			report.WriteString(fmt.Sprintf("%d. %s\n", i+1, stumble.DetailedString()))
		}
	}

	return report.String()
}
