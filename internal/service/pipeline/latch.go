package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LatchState is the state of the one-shot alert.
type LatchState int

const (
	Idle LatchState = iota
	Fired
)

func (s LatchState) String() string {
	if s == Fired {
		return "fired"
	}
	return "idle"
}

// Alert describes the single alert attempt of a session.
type Alert struct {
	Tick    int
	Message string
	Frame   Frame
	Records []DetectionRecord
	SentAt  time.Time
	Err     error
}

// Sent reports whether the notifier accepted the message.
func (a Alert) Sent() bool {
	return a.Err == nil
}

// AlertLatch fires at most once per session. A failed send does not re-arm it.
type AlertLatch struct {
	state    LatchState
	notifier Notifier
	location string
	now      func() time.Time
}

// NewAlertLatch returns an idle latch. location is embedded in the message
// when non-empty.
func NewAlertLatch(n Notifier, location string) *AlertLatch {
	return &AlertLatch{notifier: n, location: location, now: time.Now}
}

func (l *AlertLatch) State() LatchState {
	return l.state
}

// Evaluate moves Idle to Fired when landslide is true, sending exactly one
// message built from totals. It reports whether the transition happened.
func (l *AlertLatch) Evaluate(ctx context.Context, landslide bool, totals VehicleCounts, frame Frame, tick int, records []DetectionRecord) (Alert, bool) {
	if !landslide || l.state == Fired {
		return Alert{}, false
	}
	l.state = Fired

	alert := Alert{
		Tick:    tick,
		Message: ComposeAlert(l.location, totals, frame.CapturedAt),
		Frame:   frame,
		Records: records,
		SentAt:  l.now(),
	}
	alert.Err = l.notifier.Send(ctx, alert.Message)
	return alert, true
}

// ComposeAlert builds the alert text.
func ComposeAlert(location string, totals VehicleCounts, at time.Time) string {
	var b strings.Builder
	if location != "" {
		fmt.Fprintf(&b, "ALERT: Landslide detected at coordinates %s.\n", location)
	} else {
		b.WriteString("ALERT: Landslide detected.\n")
	}
	fmt.Fprintf(&b, "Potential vehicles affected: %s.", totals.Summary())
	if !at.IsZero() {
		fmt.Fprintf(&b, "\nTimestamp: %s", at.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
