package picar

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleFileName(t *testing.T) {
	ts := time.Date(2019, 5, 3, 9, 7, 2, 4005000, time.UTC)
	s := CapturedSample{Timestamp: ts, SteeringAngle: 85, Speed: 40}

	assert.Equal(t, "05-03-19-09:07:02:004005", FormatSampleTime(ts))
	assert.Equal(t, "05-03-19-09:07:02:004005_angle-85_speed-40.png", SampleFileName(s))
}

func TestNewSample_UsesSnapshot(t *testing.T) {
	frame := Frame{Image: image.NewRGBA(image.Rect(0, 0, 2, 2)), Timestamp: time.Unix(100, 0)}
	snap := ActuatorState{SteeringAngle: 120, Speed: 80, Direction: Backward}

	s := NewSample(frame, snap)
	assert.Equal(t, frame.Timestamp, s.Timestamp)
	assert.Equal(t, 120, s.SteeringAngle)
	assert.Equal(t, 80, s.Speed)
	assert.Equal(t, Backward, s.Direction)
	assert.Same(t, frame.Image, s.Frame)
}

func TestParseSampleFileName_RoundTrip(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	ts := time.Date(2024, 12, 31, 23, 59, 59, 999999000, loc)
	name := SampleFileName(CapturedSample{Timestamp: ts, SteeringAngle: 45, Speed: 100})

	info, err := ParseSampleFileName(name, loc)
	require.NoError(t, err)
	assert.True(t, info.Timestamp.Equal(ts), "%s != %s", info.Timestamp, ts)
	assert.Equal(t, 45, info.SteeringAngle)
	assert.Equal(t, 100, info.Speed)
}

func TestParseSampleFileName_Rejects(t *testing.T) {
	for _, name := range []string{
		"",
		"contact-sheet.png",
		"05-03-19-09:07:02_angle-85_speed-40.png",
		"05-03-19-09:07:02:004005_angle-85_speed-40.jpg",
		"13-45-19-09:07:02:004005_angle-85_speed-40.png",
	} {
		_, err := ParseSampleFileName(name, time.UTC)
		assert.Error(t, err, name)
	}
}
