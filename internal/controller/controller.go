// Package controller runs the sorting line: it samples the operator buttons
// and the vision sensor every cycle, drives the process state machine and
// turns detections into time-delayed sorter pulses.
//
// A Controller is owned by a single goroutine. Step, Init and Shutdown must
// not be called concurrently; other goroutines observe the line through the
// status tracker and metrics only.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/sortline/internal/config"
	"github.com/sweeney/sortline/internal/driver"
	"github.com/sweeney/sortline/internal/fieldbus"
	"github.com/sweeney/sortline/internal/logic"
	"github.com/sweeney/sortline/internal/metrics"
	"github.com/sweeney/sortline/internal/status"
)

// Gateway is the field-bus capability the controller needs. Reads fail safe
// to false/0 and failed writes are dropped; after a failure the gateway stays
// closed until NewCycle. *fieldbus.Link implements it.
type Gateway interface {
	NewCycle()
	EnsureOpen() bool
	IsOpen() bool
	ReadBit(addr uint16) bool
	ReadWord(addr uint16) int
	WriteBit(a fieldbus.Addr, v bool)
	Close() error
}

// EventSink receives line events. Errors are logged and otherwise ignored.
type EventSink interface {
	Publish(event logic.Event) error
}

// Deps are the collaborators of a Controller. Gateway and Driver are required.
type Deps struct {
	Gateway Gateway
	Driver  driver.Factory
	Sink    EventSink
	Tracker *status.Tracker
	Metrics *metrics.Metrics
	Logger  zerolog.Logger

	// Now and Sleep default to time.Now and time.Sleep.
	Now   func() time.Time
	Sleep func(time.Duration)

	// Heartbeat is called from Run every HeartbeatInterval. Zero disables it.
	HeartbeatInterval time.Duration
	Heartbeat         func(logic.HeartbeatData)
}

// Controller is the process controller of one sorting line.
type Controller struct {
	cfg      *config.Config
	io       Gateway
	conveyor *conveyor
	drv      driver.Driver
	sink     EventSink
	tracker  *status.Tracker
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
	sleep    func(time.Duration)

	hbInterval time.Duration
	hbFn       func(logic.HeartbeatData)

	sched    *logic.Scheduler
	edges    *logic.EdgeDetector
	state    logic.ProcessState
	lastCode int
	counts   logic.EventCounts
	safe     bool // start-up safe state reached the outputs

	startTime     time.Time
	lastHeartbeat time.Time
	shutdown      sync.Once
}

// New creates a controller in the IDLE state. It performs no I/O.
func New(cfg *config.Config, deps Deps) *Controller {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}
	if deps.Driver == nil {
		deps.Driver = func(c driver.Conveyor) driver.Driver { return driver.NewCompliant(c) }
	}

	log := deps.Logger.With().Str("component", "controller").Logger()
	cv := &conveyor{io: deps.Gateway, coils: cfg.Coils, metrics: deps.Metrics, log: log}

	c := &Controller{
		cfg:        cfg,
		io:         deps.Gateway,
		conveyor:   cv,
		drv:        deps.Driver(cv),
		sink:       deps.Sink,
		tracker:    deps.Tracker,
		metrics:    deps.Metrics,
		log:        log,
		now:        deps.Now,
		sleep:      deps.Sleep,
		hbInterval: deps.HeartbeatInterval,
		hbFn:       deps.Heartbeat,
		sched:      logic.NewScheduler(),
		edges:      logic.NewEdgeDetector(),
		state:      logic.StateIdle,
	}
	c.startTime = c.now()
	c.lastHeartbeat = c.startTime
	c.metrics.SetState(string(c.state), stateNames())
	return c
}

// Init puts the outputs in the start-up safe state: lamps and sorters off.
// If the field bus is unreachable the safe state is written on the first
// cycle that connects.
func (c *Controller) Init() {
	c.io.NewCycle()
	if c.io.EnsureOpen() {
		c.applySafeState()
	}
	c.log.Info().
		Str("driver", c.drv.Name()).
		Bool("fieldbus_connected", c.io.IsOpen()).
		Msg("controller initialized")
	c.publishStatus()
}

func (c *Controller) applySafeState() {
	coils := c.cfg.Coils
	c.setLamps(false, false, false)
	c.sorterOff(coils.Sorter1Turn, coils.Sorter1Belt)
	c.sorterOff(coils.Sorter2Turn, coils.Sorter2Belt)
	c.safe = c.io.IsOpen()
}

// Run executes one Step per tick until ctx is cancelled. Shutdown always runs
// before Run returns.
func (c *Controller) Run(ctx context.Context, tick <-chan time.Time) error {
	defer c.Shutdown()
	c.Init()

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("interrupted, shutting down")
			return nil
		case <-tick:
			start := time.Now()
			now := c.now()
			c.Step(now)
			c.metrics.CycleDuration.Observe(time.Since(start).Seconds())

			if hb := c.CheckHeartbeat(now, c.hbInterval); hb != nil && c.hbFn != nil {
				c.hbFn(*hb)
			}
		}
	}
}

// Step runs one control cycle at time now.
func (c *Controller) Step(now time.Time) {
	in := c.cfg.Inputs

	// One connect attempt per cycle. A cycle whose sample is incomplete is
	// not used: the edge memory and the last vision code keep their values so
	// a held button or a waiting item is not seen again after the outage.
	c.io.NewCycle()
	if c.io.EnsureOpen() {
		if !c.safe {
			c.applySafeState()
		}
		sample := logic.Buttons{
			Start: c.io.ReadBit(in.Start),
			Stop:  c.io.ReadBit(in.Stop),
			Reset: c.io.ReadBit(in.Reset),
		}
		code := c.io.ReadWord(in.Vision)

		if c.io.IsOpen() {
			if next, ok := logic.NextState(c.state, c.edges.Process(sample)); ok {
				c.transition(next, now)
			}
			if code != c.lastCode {
				c.lastCode = code
				c.detect(code, now)
			}
		}
	}

	for _, ev := range c.sched.DrainDue(now) {
		c.dispatch(ev, now)
	}

	c.metrics.SchedulePending.Set(float64(c.sched.Len()))
	c.publishStatus()
}

// Shutdown purges pending work, de-energizes the sorters, applies the STOPPED
// effects and closes the gateway. Only the first call has any effect.
func (c *Controller) Shutdown() {
	c.shutdown.Do(func() {
		now := c.now()
		coils := c.cfg.Coils
		c.io.NewCycle()
		c.purge(now)
		c.sorterOff(coils.Sorter1Turn, coils.Sorter1Belt)
		c.sorterOff(coils.Sorter2Turn, coils.Sorter2Belt)
		c.stopEffects()
		if c.state != logic.StateStopped {
			c.setState(logic.StateStopped, now)
		}
		c.publishStatus()

		if err := c.io.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close gateway")
		}
		c.log.Info().Msg("shutdown complete")
	})
}

// CheckHeartbeat returns heartbeat data if interval has elapsed since the
// last heartbeat, or nil. A non-positive interval disables heartbeats.
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *logic.HeartbeatData {
	if interval <= 0 || now.Sub(c.lastHeartbeat) < interval {
		return nil
	}
	c.lastHeartbeat = now
	return &logic.HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		State:     c.state,
		Counts:    c.counts,
	}
}

// State returns the current process state.
func (c *Controller) State() logic.ProcessState { return c.state }

// Pending returns the number of scheduled sorter commands.
func (c *Controller) Pending() int { return c.sched.Len() }

// Counts returns the activity counters since start-up.
func (c *Controller) Counts() logic.EventCounts { return c.counts }

// DriverName returns the name of the actuation driver in use.
func (c *Controller) DriverName() string { return c.drv.Name() }

func (c *Controller) transition(next logic.ProcessState, now time.Time) {
	coils := c.cfg.Coils
	switch next {
	case logic.StateRunning:
		c.purge(now)
		c.io.WriteBit(coils.ExternalRun, true)
		c.drv.Drive(false)
		c.io.WriteBit(coils.Emitter, true)
		c.sorterOff(coils.Sorter1Turn, coils.Sorter1Belt)
		c.sorterOff(coils.Sorter2Turn, coils.Sorter2Belt)
		c.setLamps(true, false, false)
		c.counts.Starts++
		c.setState(next, now)

	case logic.StateStopped:
		c.purge(now)
		c.stopEffects()
		c.counts.Stops++
		c.setState(next, now)

	case logic.StateResetting:
		c.purge(now)
		c.counts.Resets++
		c.setState(next, now)
		c.reset()
	}
}

// stopEffects de-energizes the emitter, the conveyors and both sorters and
// shows the stop lamp.
func (c *Controller) stopEffects() {
	coils := c.cfg.Coils
	c.io.WriteBit(coils.Emitter, false)
	c.drv.Drive(true)
	c.sorterOff(coils.Sorter1Turn, coils.Sorter1Belt)
	c.sorterOff(coils.Sorter2Turn, coils.Sorter2Belt)
	c.setLamps(false, true, false)
}

// reset de-energizes everything, holds the external reset output for the
// configured pulse and settles in IDLE. It blocks for the pulse duration.
func (c *Controller) reset() {
	coils := c.cfg.Coils
	c.io.WriteBit(coils.Emitter, false)
	c.drv.Drive(true)
	c.sorterOff(coils.Sorter1Turn, coils.Sorter1Belt)
	c.sorterOff(coils.Sorter2Turn, coils.Sorter2Belt)
	c.io.WriteBit(coils.ExternalRun, false)
	c.setLamps(false, false, true)

	c.io.WriteBit(coils.ExternalReset, true)
	c.sleep(c.cfg.Timing.ResetPulse)
	c.io.WriteBit(coils.ExternalReset, false)

	c.io.WriteBit(coils.ResetLamp, false)
	c.setState(logic.StateIdle, c.now())
}

func (c *Controller) detect(code int, now time.Time) {
	if c.state != logic.StateRunning || !logic.IsItem(code) {
		return
	}

	cat := logic.Classify(code)
	id := uuid.NewString()
	travel1, travel2 := c.cfg.Timing.Travel()
	timing := c.cfg.Timing

	switch cat {
	case logic.CategoryBlue:
		c.counts.Blue++
		on := c.sched.Schedule(now.Add(travel1), logic.KindSorter1On, id)
		c.sched.Schedule(on.Due.Add(timing.PushSorter1), logic.KindSorter1Off, id)
	case logic.CategoryGreen:
		c.counts.Green++
		on := c.sched.Schedule(now.Add(travel2), logic.KindSorter2On, id)
		c.sched.Schedule(on.Due.Add(timing.PushSorter2), logic.KindSorter2Off, id)
	case logic.CategoryMetal:
		c.counts.Metal++
	}

	c.metrics.ItemsDetected.WithLabelValues(string(cat)).Inc()
	c.log.Info().Int("code", code).Str("category", string(cat)).Str("item", id).Msg("item detected")
	c.emit(logic.Event{
		Timestamp: now,
		Type:      logic.EventItemDetected,
		State:     c.state,
		Code:      code,
		Category:  cat,
		ItemID:    id,
	})
}

func (c *Controller) dispatch(ev logic.ScheduledEvent, now time.Time) {
	coils := c.cfg.Coils
	switch ev.Kind {
	case logic.KindSorter1On:
		c.sorterOn(coils.Sorter1Turn, coils.Sorter1Belt)
		c.counts.Sorter1Pulses++
		c.metrics.SorterPulses.WithLabelValues("1").Inc()
	case logic.KindSorter1Off:
		c.sorterOff(coils.Sorter1Turn, coils.Sorter1Belt)
	case logic.KindSorter2On:
		c.sorterOn(coils.Sorter2Turn, coils.Sorter2Belt)
		c.counts.Sorter2Pulses++
		c.metrics.SorterPulses.WithLabelValues("2").Inc()
	case logic.KindSorter2Off:
		c.sorterOff(coils.Sorter2Turn, coils.Sorter2Belt)
	}

	c.log.Debug().
		Str("command", string(ev.Kind)).
		Str("item", ev.ItemID).
		Dur("late", now.Sub(ev.Due)).
		Msg("dispatched")
	c.emit(logic.Event{
		Timestamp: now,
		Type:      logic.EventDispatched,
		State:     c.state,
		ItemID:    ev.ItemID,
		Kind:      ev.Kind,
	})
}

// purge discards all pending sorter commands.
func (c *Controller) purge(now time.Time) {
	n := c.sched.Clear()
	c.metrics.SchedulePending.Set(0)
	if n == 0 {
		return
	}
	c.counts.Purged += n
	c.metrics.EventsPurged.Add(float64(n))
	c.log.Info().Int("purged", n).Msg("pending sorter commands discarded")
	c.emit(logic.Event{
		Timestamp: now,
		Type:      logic.EventPurged,
		State:     c.state,
		Purged:    n,
	})
}

func (c *Controller) setState(next logic.ProcessState, now time.Time) {
	from := c.state
	c.state = next
	c.metrics.Transitions.WithLabelValues(string(from), string(next)).Inc()
	c.metrics.SetState(string(next), stateNames())
	c.log.Info().Str("from", string(from)).Str("to", string(next)).Msg("state change")
	c.emit(logic.Event{
		Timestamp: now,
		Type:      logic.EventStateChange,
		From:      from,
		State:     next,
	})
	c.publishStatus()
}

// Sorter on: turn, then belt. Off: belt, then turn.
func (c *Controller) sorterOn(turn, belt fieldbus.Addr) {
	c.io.WriteBit(turn, true)
	c.io.WriteBit(belt, true)
}

func (c *Controller) sorterOff(turn, belt fieldbus.Addr) {
	c.io.WriteBit(belt, false)
	c.io.WriteBit(turn, false)
}

func (c *Controller) setLamps(start, stop, reset bool) {
	coils := c.cfg.Coils
	c.io.WriteBit(coils.StartLamp, start)
	c.io.WriteBit(coils.StopLamp, stop)
	c.io.WriteBit(coils.ResetLamp, reset)
}

func (c *Controller) emit(ev logic.Event) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Publish(ev); err != nil {
		c.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("publish failed")
	}
}

func (c *Controller) publishStatus() {
	if c.tracker == nil {
		return
	}
	c.tracker.Update(status.Line{
		State:             c.state,
		Counts:            c.counts,
		Pending:           c.sched.Len(),
		LastCode:          c.lastCode,
		ConveyorSpeed:     c.conveyor.Speed(),
		FieldbusConnected: c.io.IsOpen(),
	})
}

func stateNames() []string {
	states := logic.States()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return names
}
