package picar

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/teranos/picar/trip"
)

// captureLoop pulls frames, shows them and, when logging is enabled, saves
// each one with the state snapshot taken right after the pull.
type captureLoop struct {
	cam       Camera
	display   Display
	persister Persister // nil when logging is disabled
	guard     *stateGuard
	stop      *stopFlag
	trips     *trip.Handler
	stats     *sessionStats
	logger    hclog.Logger

	mu    sync.Mutex
	files []string
}

// run loops until the camera closes, the stream ends or the stop flag is
// seen. The flag is checked once per iteration after the frame is handled.
func (c *captureLoop) run() {
	log := c.logger.Named("capture")

	for c.cam.IsOpen() {
		frame, err := c.cam.ReadFrame()
		if err != nil {
			c.endOfStream(log, err)
			return
		}
		atomic.AddInt64(&c.stats.frames, 1)

		snap := c.guard.Snapshot()

		if err := c.display.Show(frame, snap); err != nil {
			log.Warn("display failed", "error", err)
			recordTrip(c.trips, c.stop, trip.NewStumble(trip.Display, "frame not shown", nil).Wrap(err))
		}

		if c.persister != nil {
			c.persist(log, NewSample(frame, snap))
		}

		if c.stop.Stopped() {
			log.Debug("stop observed", "reason", c.stop.Reason())
			return
		}
	}

	log.Info("camera closed")
	c.stop.Signal(ReasonCameraClosed)
}

func (c *captureLoop) endOfStream(log hclog.Logger, err error) {
	if errors.Is(err, ErrStreamEnded) {
		log.Info("stream ended")
		c.trips.Record(trip.NewStumble(trip.StreamEnded, "camera reported end of stream", nil))
	} else {
		log.Error("frame read failed", "error", err)
		c.trips.Record(trip.NewTrip(trip.StreamEnded, "frame read failed", nil).Wrap(err))
	}
	c.stop.Signal(ReasonStreamEnded)
}

func (c *captureLoop) persist(log hclog.Logger, sample CapturedSample) {
	name, err := c.persister.Save(sample)
	if name != "" {
		atomic.AddInt64(&c.stats.samples, 1)
		log.Debug("saved", "file", name)

		c.mu.Lock()
		c.files = append(c.files, name)
		c.mu.Unlock()
	}
	if err != nil {
		msg := "sample not saved"
		if name != "" {
			msg = "sample saved but not indexed"
		}
		log.Warn(msg, "file", name, "error", err)
		recordTrip(c.trips, c.stop, trip.NewStumble(trip.Persist, msg, trip.Context{
			"angle": sample.SteeringAngle,
			"speed": sample.Speed,
		}).Wrap(err))
	}
}

func (c *captureLoop) savedFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.files...)
}
