package picar

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// SampleTimeLayout is the date part of a sample file name, month first,
// two-digit year. Microseconds follow after a colon.
const SampleTimeLayout = "01-02-06-15:04:05"

// SampleExt is the extension of saved samples.
const SampleExt = ".png"

var sampleNameRe = regexp.MustCompile(`^(\d{2}-\d{2}-\d{2}-\d{2}:\d{2}:\d{2}):(\d{6})_angle-(\d+)_speed-(\d+)\.png$`)

// FormatSampleTime renders t as MM-DD-YY-HH:MM:SS:micro.
func FormatSampleTime(t time.Time) string {
	return t.Format(SampleTimeLayout) + fmt.Sprintf(":%06d", t.Nanosecond()/int(time.Microsecond))
}

// SampleFileName returns the file name a sample is stored under:
// <timestamp>_angle-<angle>_speed-<speed>.png
func SampleFileName(s CapturedSample) string {
	return fmt.Sprintf("%s_angle-%d_speed-%d%s", FormatSampleTime(s.Timestamp), s.SteeringAngle, s.Speed, SampleExt)
}

// SampleInfo is what a sample file name encodes.
type SampleInfo struct {
	Timestamp     time.Time
	SteeringAngle int
	Speed         int
}

// ParseSampleFileName decodes a name produced by SampleFileName. Times are
// interpreted in loc.
func ParseSampleFileName(name string, loc *time.Location) (SampleInfo, error) {
	m := sampleNameRe.FindStringSubmatch(name)
	if m == nil {
		return SampleInfo{}, fmt.Errorf("not a sample file name: %q", name)
	}

	ts, err := time.ParseInLocation(SampleTimeLayout, m[1], loc)
	if err != nil {
		return SampleInfo{}, fmt.Errorf("sample time: %w", err)
	}
	micros, _ := strconv.Atoi(m[2])
	angle, _ := strconv.Atoi(m[3])
	speed, _ := strconv.Atoi(m[4])

	return SampleInfo{
		Timestamp:     ts.Add(time.Duration(micros) * time.Microsecond),
		SteeringAngle: angle,
		Speed:         speed,
	}, nil
}
