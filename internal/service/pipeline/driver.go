package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the coarse pipeline state shown to viewers.
type State string

const (
	StateWaiting    State = "waiting"
	StateMonitoring State = "monitoring"
	StateLandslide  State = "landslide"
	StateError      State = "error"
	StateDone       State = "done"
)

const (
	textWaiting    = "Status: Waiting"
	textMonitoring = "Status: Monitoring Active"
	textLandslide  = "\U0001F6A8 Landslide Detected!"
	textDone       = "Processing Done"
)

// Alert status values reported in Status.Alert.
const (
	AlertNotSent = "not sent"
	AlertSent    = "sent"
)

// Status is a point-in-time view of the pipeline.
type Status struct {
	Tick         int       `json:"tick"`
	State        State     `json:"state"`
	Text         string    `json:"text"`
	VehicleCount int       `json:"vehicle_count"`
	LastImage    time.Time `json:"last_image,omitempty"`
	Alert        string    `json:"alert"`
	AlertFired   bool      `json:"alert_fired"`
}

type Config struct {
	Source     FrameSource
	Aggregator *Aggregator
	Scheduler  Scheduler
	Notifier   Notifier
	Display    Display
	Journal    Journal
	Logger     Logger

	// WindowSize and HistorySize default to DefaultWindowSize and
	// DefaultHistorySize when zero.
	WindowSize  int
	HistorySize int
	// TickDelay is the pause between the end of a tick and the next one.
	TickDelay time.Duration
	// Location is embedded in the alert message.
	Location string
}

// Driver owns all per-session state and advances it one tick at a time.
type Driver struct {
	source     FrameSource
	aggregator *Aggregator
	scheduler  Scheduler
	display    Display
	journal    Journal
	log        Logger
	delay      time.Duration

	mu               sync.Mutex // serialises ticks
	tick             int
	lastVehicleCount int
	window           *VehicleWindow
	history          *History
	latch            *AlertLatch
	done             bool

	statusMu sync.RWMutex
	status   Status

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config) (*Driver, error) {
	switch {
	case cfg.Source == nil:
		return nil, &ConfigError{Field: "frame source", Reason: "is required"}
	case cfg.Aggregator == nil:
		return nil, &ConfigError{Field: "aggregator", Reason: "is required"}
	case cfg.Notifier == nil:
		return nil, &ConfigError{Field: "notifier", Reason: "is required"}
	case cfg.Display == nil:
		return nil, &ConfigError{Field: "display", Reason: "is required"}
	case cfg.Scheduler.Interval() < 1:
		return nil, &ConfigError{Field: "detection interval", Reason: "must be >= 1"}
	case cfg.TickDelay < 0:
		return nil, &ConfigError{Field: "tick delay", Reason: "must not be negative"}
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	window, err := NewVehicleWindow(cfg.WindowSize)
	if err != nil {
		return nil, err
	}
	history, err := NewHistory(cfg.HistorySize)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Driver{
		source:     cfg.Source,
		aggregator: cfg.Aggregator,
		scheduler:  cfg.Scheduler,
		display:    cfg.Display,
		journal:    cfg.Journal,
		log:        logger,
		delay:      cfg.TickDelay,
		window:     window,
		history:    history,
		latch:      NewAlertLatch(cfg.Notifier, cfg.Location),
		status:     Status{State: StateWaiting, Text: textWaiting, Alert: AlertNotSent},
		stopCh:     make(chan struct{}),
	}, nil
}

// Status returns a copy of the latest status. Safe to call while a tick runs.
func (d *Driver) Status() Status {
	d.statusMu.RLock()
	defer d.statusMu.RUnlock()
	return d.status
}

func (d *Driver) setStatus(s Status) {
	d.statusMu.Lock()
	d.status = s
	d.statusMu.Unlock()
}

// Run ticks until the source is exhausted, Stop is called or ctx is done.
// The first tick runs immediately; each following tick starts TickDelay after
// the previous one finished.
func (d *Driver) Run(ctx context.Context) error {
	d.log.Info("Pipeline started - detecting every %d tick(s), delay %s", d.scheduler.Interval(), d.delay)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("Pipeline stopping: %v", ctx.Err())
			return nil
		case <-d.stopCh:
			d.log.Info("Pipeline stopped")
			return nil
		case <-timer.C:
		}

		if _, done := d.Tick(ctx); done {
			return nil
		}
		timer.Reset(d.delay)
	}
}

// Stop halts scheduling of further ticks. An in-flight tick completes.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Tick processes exactly one tick. done is true once the source is exhausted.
func (d *Driver) Tick(ctx context.Context) (Status, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done {
		return d.Status(), true
	}

	st := d.Status()
	st.Tick = d.tick

	frame, err := d.source.Next(ctx)
	if errors.Is(err, ErrSourceExhausted) {
		d.done = true
		st.State = StateDone
		st.Text = textDone
		d.setStatus(st)
		d.log.Info("Frame source exhausted after %d tick(s)", d.tick)
		return st, true
	}
	if err != nil {
		d.log.Error("Tick %d: frame source failed: %v", d.tick, err)
		st.State = StateError
		st.Text = "Error: " + err.Error()
		d.setStatus(st)
		d.tick++
		return st, false
	}
	st.LastImage = frame.CapturedAt

	var batch Batch
	if d.scheduler.IsDetectionTick(d.tick) {
		batch = d.detect(ctx, frame, &st)
	}

	d.history.Push(batch)
	d.display.Render(frame, d.history.Snapshot(), st.Text, d.lastVehicleCount)

	st.VehicleCount = d.lastVehicleCount
	d.setStatus(st)
	d.tick++
	return st, false
}

// detect runs the detection part of a tick and updates st. It returns the
// batch to push onto the history, empty when detection failed.
func (d *Driver) detect(ctx context.Context, frame Frame, st *Status) Batch {
	det, err := d.aggregator.Run(ctx, frame, d.tick)
	if err != nil {
		d.log.Error("Tick %d: detection failed: %v", d.tick, err)
		st.State = StateError
		st.Text = "Error: " + err.Error()
		return nil
	}

	if !det.Vehicles.Empty() {
		d.lastVehicleCount = det.Vehicles.Total()
	}
	d.window.Push(det.Vehicles)

	if len(det.Batch) > 0 && d.journal != nil {
		if err := d.journal.RecordBatch(d.tick, frame, det.Batch); err != nil {
			d.log.Warning("Tick %d: journal batch failed: %v", d.tick, err)
		}
	}

	if det.LandslideDetected {
		d.log.Warning("Tick %d: landslide detected", d.tick)
		st.State = StateLandslide
		st.Text = textLandslide
	} else {
		st.State = StateMonitoring
		st.Text = textMonitoring
	}

	alert, fired := d.latch.Evaluate(ctx, det.LandslideDetected, d.window.Aggregate(), frame, d.tick, det.Batch)
	if fired {
		st.AlertFired = true
		if alert.Sent() {
			st.Alert = AlertSent
			d.log.Info("Tick %d: alert sent", d.tick)
		} else {
			st.Alert = "failed: " + alert.Err.Error()
			d.log.Error("Tick %d: alert send failed: %v", d.tick, alert.Err)
		}
		if d.journal != nil {
			if err := d.journal.RecordAlert(alert); err != nil {
				d.log.Warning("Tick %d: journal alert failed: %v", d.tick, err)
			}
		}
	}

	return det.Batch
}
