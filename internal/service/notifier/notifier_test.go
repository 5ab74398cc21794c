package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"landslidewatch/internal/logger"

	"github.com/nats-io/nats.go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	params []*twilioApi.CreateMessageParams
	resp   *twilioApi.ApiV2010Message
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	return f.resp, f.err
}

func TestTwilioSend(t *testing.T) {
	api := &fakeCreator{resp: &twilioApi.ApiV2010Message{}}
	tw := &Twilio{From: "+15550001", To: "+15550002", api: api}

	if err := tw.Send(context.Background(), "ALERT: Landslide detected."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.params) != 1 {
		t.Fatalf("expected 1 request, got %d", len(api.params))
	}
	p := api.params[0]
	if *p.To != "+15550002" || *p.From != "+15550001" || *p.Body != "ALERT: Landslide detected." {
		t.Fatalf("unexpected params to=%s from=%s body=%s", *p.To, *p.From, *p.Body)
	}
}

func TestTwilioSendFailure(t *testing.T) {
	tw := &Twilio{From: "+15550001", To: "+15550002", api: &fakeCreator{err: errors.New("401 unauthorized")}}
	err := tw.Send(context.Background(), "msg")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected wrapped API error, got %v", err)
	}

	msg := "invalid number"
	tw.api = &fakeCreator{resp: &twilioApi.ApiV2010Message{ErrorMessage: &msg}}
	if err := tw.Send(context.Background(), "msg"); err == nil {
		t.Fatal("expected error for rejected message")
	}

	tw.To = ""
	if err := tw.Send(context.Background(), "msg"); err == nil {
		t.Fatal("expected error without recipient")
	}
}

type fakePublisher struct {
	msgs     []*nats.Msg
	pubErr   error
	flushErr error
}

func (f *fakePublisher) PublishMsg(m *nats.Msg) error {
	f.msgs = append(f.msgs, m)
	return f.pubErr
}

func (f *fakePublisher) FlushWithContext(_ context.Context) error {
	return f.flushErr
}

func TestNATSSendPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sentAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := &NATS{subject: "landslide.alert", conn: pub, now: func() time.Time { return sentAt }}

	if err := n.Send(context.Background(), "ALERT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].Subject != "landslide.alert" {
		t.Fatalf("unexpected messages %+v", pub.msgs)
	}

	var got AlertMessage
	if err := json.Unmarshal(pub.msgs[0].Data, &got); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if got.Message != "ALERT" || !got.SentAt.Equal(sentAt) {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestNATSSendReportsFlushFailure(t *testing.T) {
	pub := &fakePublisher{flushErr: nats.ErrConnectionClosed}
	n := &NATS{subject: "landslide.alert", conn: pub, now: time.Now}

	err := n.Send(context.Background(), "ALERT")
	if !errors.Is(err, nats.ErrConnectionClosed) {
		t.Fatalf("expected connection closed error, got %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	dir, err := os.MkdirTemp("", "notifier_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	l, err := logger.NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	if err := (Log{Logger: l}).Send(context.Background(), "Potential vehicles affected: 1 car."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, logger.WarningFile))
	if !strings.Contains(string(data), "1 car") {
		t.Fatalf("expected alert in warning log, got %q", string(data))
	}
}

type deadlineNotifier struct {
	deadline time.Time
	ok       bool
}

func (d *deadlineNotifier) Send(ctx context.Context, _ string) error {
	d.deadline, d.ok = ctx.Deadline()
	return nil
}

func TestWithTimeout(t *testing.T) {
	inner := &deadlineNotifier{}
	start := time.Now()
	if err := WithTimeout(inner, 5*time.Second).Send(context.Background(), "m"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inner.ok || inner.deadline.Before(start) || inner.deadline.After(start.Add(6*time.Second)) {
		t.Fatalf("expected a 5s deadline, got %v (set=%v)", inner.deadline, inner.ok)
	}

	if WithTimeout(inner, 0) != inner {
		t.Fatal("expected zero timeout to return the notifier unchanged")
	}
}
