package picar

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/teranos/picar/trip"
)

// StopReason records why a session stopped.
type StopReason string

const (
	ReasonNone         StopReason = ""
	ReasonQuit         StopReason = "quit"
	ReasonInputClosed  StopReason = "input_closed"
	ReasonStreamEnded  StopReason = "stream_ended"
	ReasonCameraClosed StopReason = "camera_closed"
	ReasonCanceled     StopReason = "canceled"
	ReasonFault        StopReason = "fault"
)

// stopFlag is the single cancellation signal shared by every flow of a
// session. The first reason wins; faults are kept separately so a fault
// after a quit still surfaces.
type stopFlag struct {
	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	reason StopReason
	fault  error
}

func newStopFlag() *stopFlag {
	return &stopFlag{done: make(chan struct{})}
}

func (f *stopFlag) Signal(reason StopReason) {
	f.once.Do(func() {
		f.mu.Lock()
		f.reason = reason
		f.mu.Unlock()
		close(f.done)
	})
}

// Fault records err as the session fault and signals the stop.
func (f *stopFlag) Fault(err error) {
	f.mu.Lock()
	if f.fault == nil {
		f.fault = err
	}
	f.mu.Unlock()
	f.Signal(ReasonFault)
}

func (f *stopFlag) Done() <-chan struct{} { return f.done }

func (f *stopFlag) Stopped() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *stopFlag) Reason() StopReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

func (f *stopFlag) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fault
}

// recordTrip files t with the session's trips. A trip that cannot be
// recovered faults the session, and so does a stumble past the policy's
// stumble budget.
func recordTrip(trips *trip.Handler, stop *stopFlag, t *trip.Trip) {
	trips.Record(t)
	if !t.CanRecover() {
		stop.Fault(t)
		return
	}
	if trips.ShouldContinue() || stop.Err() != nil {
		return
	}
	fall := trip.NewFall(t.Type, "too many stumbles", trip.Context{
		"max_stumbles": trips.MaxStumbles(),
	}).Wrap(t)
	trips.Record(fall)
	stop.Fault(fall)
}

// sessionStats are the counters that end up in the Report.
type sessionStats struct {
	commandsIssued int64
	commandsFailed int64
	eventsIgnored  int64
	frames         int64
	samples        int64
}

// inputChannel is one logical listener with its own inbox.
type inputChannel struct {
	name    string
	inbox   chan KeyEvent
	accepts func(KeyEvent) bool
}

func steeringAccepts(ev KeyEvent) bool {
	if ev.Phase != Press {
		return false
	}
	return ev.Key == KeyLeft || ev.Key == KeyRight || ev.Key == KeyQuit
}

func driveAccepts(ev KeyEvent) bool {
	switch ev.Key {
	case KeyForward, KeyBackward:
		return true
	case KeyQuit:
		return ev.Phase == Press
	default:
		return false
	}
}

const inboxSize = 16

// controlLoop runs the steering and drive listeners. It is the only
// writer of the session's ActuatorState and the only caller of the
// actuator while the session is running.
type controlLoop struct {
	translator Translator
	guard      *stateGuard
	act        Actuator
	actMu      *sync.Mutex
	stop       *stopFlag
	trips      *trip.Handler
	stats      *sessionStats
	logger     hclog.Logger

	steering *inputChannel
	drive    *inputChannel
	wg       sync.WaitGroup
}

func newControlLoop(t Translator, guard *stateGuard, act Actuator, actMu *sync.Mutex,
	stop *stopFlag, trips *trip.Handler, stats *sessionStats, logger hclog.Logger) *controlLoop {
	return &controlLoop{
		translator: t,
		guard:      guard,
		act:        act,
		actMu:      actMu,
		stop:       stop,
		trips:      trips,
		stats:      stats,
		logger:     logger.Named("control"),
		steering: &inputChannel{
			name:    "steering",
			inbox:   make(chan KeyEvent, inboxSize),
			accepts: steeringAccepts,
		},
		drive: &inputChannel{
			name:    "drive",
			inbox:   make(chan KeyEvent, inboxSize),
			accepts: driveAccepts,
		},
	}
}

// start launches the router and both listeners.
func (c *controlLoop) start(src InputSource) {
	c.wg.Add(3)
	go c.route(src.Events())
	go c.listen(c.steering)
	go c.listen(c.drive)
}

// wait joins the router and both listeners.
func (c *controlLoop) wait() {
	c.wg.Wait()
}

// route fans presses out to both channels and releases to the drive
// channel, the way each listener was registered for its own phases. It
// stops after forwarding a quit.
func (c *controlLoop) route(events <-chan KeyEvent) {
	defer c.wg.Done()
	defer c.recoverFault("router")

	for {
		select {
		case <-c.stop.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.logger.Info("input source closed")
				c.stop.Signal(ReasonInputClosed)
				return
			}
			if ev.Key == KeyUnknown {
				atomic.AddInt64(&c.stats.eventsIgnored, 1)
				continue
			}
			if ev.Phase == Press && !c.deliver(c.steering, ev) {
				return
			}
			if !c.deliver(c.drive, ev) {
				return
			}
			if ev.Key == KeyQuit && ev.Phase == Press {
				return
			}
		}
	}
}

func (c *controlLoop) deliver(ch *inputChannel, ev KeyEvent) bool {
	select {
	case ch.inbox <- ev:
		return true
	case <-c.stop.Done():
		return false
	}
}

func (c *controlLoop) listen(ch *inputChannel) {
	defer c.wg.Done()
	defer c.recoverFault(ch.name)

	log := c.logger.Named(ch.name)
	log.Debug("listening")

	for {
		select {
		case <-c.stop.Done():
			reason := c.stop.Reason()
			log.Debug("stop observed", "reason", reason)
			if reason == ReasonQuit || reason == ReasonInputClosed {
				c.drain(log, ch)
			}
			return
		case ev := <-ch.inbox:
			if !ch.accepts(ev) {
				continue
			}
			if c.handle(log, ev) {
				log.Info("quit requested")
				c.stop.Signal(ReasonQuit)
				return
			}
		}
	}
}

// drain applies the events the router queued ahead of a quit or the end
// of input, so every key pressed before the quit takes effect. Everything
// ahead of the quit is already queued when the flag is set.
func (c *controlLoop) drain(log hclog.Logger, ch *inputChannel) {
	for {
		select {
		case ev := <-ch.inbox:
			if !ch.accepts(ev) {
				continue
			}
			if c.handle(log, ev) {
				return
			}
		default:
			return
		}
	}
}

// handle applies ev and issues its command. The actuator lock is held
// across apply and issue so commands reach the driver in commit order.
func (c *controlLoop) handle(log hclog.Logger, ev KeyEvent) bool {
	c.actMu.Lock()
	defer c.actMu.Unlock()

	var (
		cmd  Command
		quit bool
	)
	prev, next := c.guard.update(func(s ActuatorState) ActuatorState {
		var n ActuatorState
		n, cmd, quit = c.translator.Apply(s, ev)
		return n
	})
	if quit || cmd.IsNone() {
		return quit
	}

	log.Trace("apply", "event", ev.String(), "from", prev.String(), "to", next.String(), "command", cmd.String())

	if err := issue(c.act, cmd); err != nil {
		atomic.AddInt64(&c.stats.commandsFailed, 1)
		if cmd.Kind == CommandStop {
			c.retryStop(log, err)
			return false
		}
		log.Warn("actuator command failed", "command", cmd.String(), "error", err)
		recordTrip(c.trips, c.stop, trip.NewStumble(trip.ActuatorCommand, "actuator command failed", trip.Context{
			"channel": log.Name(),
			"command": cmd.String(),
		}).Wrap(err))
		return false
	}
	atomic.AddInt64(&c.stats.commandsIssued, 1)
	return false
}

// retryStop retries a failed safety stop per the trip policy and escalates
// to a session fault when every retry fails.
func (c *controlLoop) retryStop(log hclog.Logger, err error) {
	rc, ok := c.trips.GetRetryConfig(trip.SafetyStop)
	if !ok {
		rc = trip.RetryConfig{MaxRetries: 1}
	}

	for attempt := 1; attempt <= rc.MaxRetries; attempt++ {
		log.Warn("safety stop failed, retrying", "attempt", attempt, "error", err)
		recordTrip(c.trips, c.stop, trip.NewStumble(trip.ActuatorCommand, "stop failed", trip.Context{
			"channel": log.Name(),
		}).WithAttempt(attempt).Wrap(err))

		time.Sleep(rc.Delay(attempt))
		if err = issue(c.act, Command{Kind: CommandStop}); err == nil {
			atomic.AddInt64(&c.stats.commandsIssued, 1)
			return
		}
		atomic.AddInt64(&c.stats.commandsFailed, 1)
	}

	log.Error("safety stop failed after retries", "retries", rc.MaxRetries, "error", err)
	fall := trip.NewFall(trip.SafetyStop, "rear wheels did not stop", trip.Context{
		"channel": log.Name(),
		"retries": rc.MaxRetries,
	}).WithAttempt(rc.MaxRetries + 1).Wrap(err)
	recordTrip(c.trips, c.stop, fall)
}

func (c *controlLoop) recoverFault(name string) {
	if r := recover(); r != nil {
		c.logger.Error("flow panicked", "flow", name, "panic", r)
		recordTrip(c.trips, c.stop, trip.NewFall(trip.Panic, fmt.Sprintf("%s panicked", name), trip.Context{"panic": r}))
	}
}

// issue performs the driver calls for one command.
func issue(act Actuator, cmd Command) error {
	switch cmd.Kind {
	case CommandTurn:
		return act.Turn(cmd.Angle)
	case CommandDriveForward:
		if err := act.SetSpeed(cmd.Speed); err != nil {
			return fmt.Errorf("set speed %d: %w", cmd.Speed, err)
		}
		return act.Forward()
	case CommandDriveBackward:
		if err := act.SetSpeed(cmd.Speed); err != nil {
			return fmt.Errorf("set speed %d: %w", cmd.Speed, err)
		}
		return act.Backward()
	case CommandStop:
		return act.Stop()
	}
	return nil
}
