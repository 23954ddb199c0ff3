package picar

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/teranos/picar/trip"
)

// ReportFile is the name WriteReport gives the session summary.
const ReportFile = "session.yaml"

// Report summarizes one session run.
type Report struct {
	Phase          Phase         `yaml:"phase"`
	StopReason     StopReason    `yaml:"stop_reason"`
	Started        time.Time     `yaml:"started"`
	Duration       time.Duration `yaml:"duration"`
	FinalState     ActuatorState `yaml:"final_state"`
	CommandsIssued int64         `yaml:"commands_issued"`
	CommandsFailed int64         `yaml:"commands_failed"`
	EventsIgnored  int64         `yaml:"events_ignored"`
	Frames         int64         `yaml:"frames"`
	Samples        int64         `yaml:"samples"`
	SampleFiles    []string      `yaml:"sample_files,omitempty"`
	Trips          []TripRecord  `yaml:"trips,omitempty"`
	Fault          string        `yaml:"fault,omitempty"`
}

// TripRecord is the report form of a trip.
type TripRecord struct {
	Type      string        `yaml:"type"`
	Severity  trip.Severity `yaml:"severity"`
	Message   string        `yaml:"message"`
	Timestamp time.Time     `yaml:"timestamp"`
	Attempt   int           `yaml:"attempt,omitempty"`
	Cause     string        `yaml:"cause,omitempty"`
}

// Faulted reports whether the session ended on a fault.
func (r *Report) Faulted() bool {
	return r.Fault != ""
}

func (s *Session) report(started time.Time, stop *stopFlag, capture *captureLoop) *Report {
	rep := &Report{
		Phase:          s.Phase(),
		StopReason:     stop.Reason(),
		Started:        started,
		Duration:       time.Since(started),
		FinalState:     s.guard.Snapshot(),
		CommandsIssued: atomic.LoadInt64(&s.stats.commandsIssued),
		CommandsFailed: atomic.LoadInt64(&s.stats.commandsFailed),
		EventsIgnored:  atomic.LoadInt64(&s.stats.eventsIgnored),
		Frames:         atomic.LoadInt64(&s.stats.frames),
		Samples:        atomic.LoadInt64(&s.stats.samples),
	}
	if capture != nil {
		rep.SampleFiles = capture.savedFiles()
	}
	if err := stop.Err(); err != nil {
		rep.Fault = err.Error()
	}

	all := append(s.trips.GetTrips(), s.trips.GetStumbles()...)
	for _, t := range all {
		rec := TripRecord{
			Type:      t.Type,
			Severity:  t.Severity,
			Message:   t.Message,
			Timestamp: t.Timestamp,
			Attempt:   t.Attempt,
		}
		if t.Cause != nil {
			rec.Cause = t.Cause.Error()
		}
		rep.Trips = append(rep.Trips, rec)
	}
	return rep
}

// WriteReport writes the report as YAML into dir and returns the path.
func WriteReport(dir string, rep *Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := yaml.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	path := filepath.Join(dir, ReportFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw struct {
		StopReason StopReason    `yaml:"stop_reason"`
		Started    time.Time     `yaml:"started"`
		Duration   time.Duration `yaml:"duration"`
		Frames     int64         `yaml:"frames"`
		Samples    int64         `yaml:"samples"`
		Files      []string      `yaml:"sample_files"`
		Fault      string        `yaml:"fault"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}

	return &Report{
		Phase:       PhaseStopped,
		StopReason:  raw.StopReason,
		Started:     raw.Started,
		Duration:    raw.Duration,
		Frames:      raw.Frames,
		Samples:     raw.Samples,
		SampleFiles: raw.Files,
		Fault:       raw.Fault,
	}, nil
}
