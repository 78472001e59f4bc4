package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap/zaptest"

	"predictive_alerts/internal/logger"
	"predictive_alerts/internal/metrics"
	"predictive_alerts/internal/models"
)

func alert(sev models.Severity) models.Alert {
	return models.Alert{
		ID:          "a-1",
		EquipmentID: "MOTOR-001",
		Type:        "THERMOGRAPHY",
		Severity:    sev,
		Criticality: models.CriticalityHigh,
		Channel:     "bearing_temperature",
		Message:     "bearing_temperature on MOTOR-001 breached limit 80.00",
		MeasuredAt:  time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
	}
}

type fakeSender struct {
	ch  Channel
	err error

	mu    sync.Mutex
	calls []string
}

func (f *fakeSender) Channel() Channel { return f.ch }

func (f *fakeSender) Send(_ context.Context, a models.Alert, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, a.ID)
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestPolicy_Wants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		p    Policy
		sev  models.Severity
		want bool
	}{
		{"no channels", Policy{}, models.SeverityP1, false},
		{"no minimum", Policy{Channels: []Channel{ChannelEmail}}, models.SeverityP4, true},
		{"severe enough", Policy{Channels: []Channel{ChannelEmail}, MinimumSeverity: models.SeverityP2}, models.SeverityP1, true},
		{"too mild", Policy{Channels: []Channel{ChannelEmail}, MinimumSeverity: models.SeverityP2}, models.SeverityP3, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.p.Wants(alert(tt.sev)); got != tt.want {
				t.Fatalf("Wants = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDispatcher_FansOutAndSwallowsFailures(t *testing.T) {
	t.Parallel()
	email := &fakeSender{ch: ChannelEmail}
	sms := &fakeSender{ch: ChannelSMS, err: errors.New("gateway down")}
	d := NewDispatcher(logger.Wrap(zaptest.NewLogger(t)), metrics.New(), 0, 1, time.Second, email, sms)

	d.Dispatch(alert(models.SeverityP1), Policy{
		Recipients: []string{"ops@example.com"},
		Channels:   []Channel{ChannelEmail, ChannelSMS, ChannelNATS},
	})
	d.Wait()

	if email.count() != 1 || sms.count() != 1 {
		t.Fatalf("expected one delivery per configured channel, got email=%d sms=%d", email.count(), sms.count())
	}
}

func TestDispatcher_SkipsMildAlerts(t *testing.T) {
	t.Parallel()
	email := &fakeSender{ch: ChannelEmail}
	d := NewDispatcher(logger.Nop(), nil, 0, 1, time.Second, email)

	d.Dispatch(alert(models.SeverityP4), Policy{Channels: []Channel{ChannelEmail}, MinimumSeverity: models.SeverityP2})
	d.Wait()

	if email.count() != 0 {
		t.Fatalf("P4 must not be sent with a P2 minimum")
	}
}

// captureMail swaps the SMTP dial for a recorder of the rendered message.
func captureMail(t *testing.T, s *EmailSender) *string {
	t.Helper()
	var out string
	s.send = func(_ context.Context, msg *mail.Msg) error {
		var buf bytes.Buffer
		if _, err := msg.WriteTo(&buf); err != nil {
			return err
		}
		out = buf.String()
		return nil
	}
	return &out
}

func TestEmailSender_BuildsMessage(t *testing.T) {
	t.Parallel()
	s := NewEmailSender(SMTPConfig{Addr: "mail.example.com:25", From: "alerts@example.com"})
	got := captureMail(t, s)

	if err := s.Send(context.Background(), alert(models.SeverityP2), []string{"a@example.com", "b@example.com"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(*got, "Subject: [P2/HIGH] MOTOR-001 bearing_temperature") {
		t.Fatalf("subject missing:\n%s", *got)
	}
	if !strings.Contains(*got, "a@example.com") || !strings.Contains(*got, "b@example.com") {
		t.Fatalf("recipients missing:\n%s", *got)
	}
}

func TestEmailSender_EncodesUnsafeSubject(t *testing.T) {
	t.Parallel()
	s := NewEmailSender(SMTPConfig{Addr: "mail.example.com:25", From: "alerts@example.com"})
	got := captureMail(t, s)

	a := alert(models.SeverityP1)
	a.EquipmentID = "MÓTOR-7\r\nBcc: attacker@example.com"
	if err := s.Send(context.Background(), a, []string{"ops@example.com"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if strings.Contains(*got, "\nBcc:") {
		t.Fatalf("header injected:\n%s", *got)
	}
	if !strings.Contains(strings.ToLower(*got), "=?utf-8?q?") {
		t.Fatalf("expected an encoded subject:\n%s", *got)
	}
}

func TestEmailSender_BadSender(t *testing.T) {
	t.Parallel()
	s := NewEmailSender(SMTPConfig{Addr: "mail.example.com:25", From: "not an address"})
	_ = captureMail(t, s)
	if err := s.Send(context.Background(), alert(models.SeverityP1), []string{"ops@example.com"}); err == nil {
		t.Fatal("expected invalid from address to fail")
	}
}

func TestEmailSender_NoRecipients(t *testing.T) {
	t.Parallel()
	s := NewEmailSender(SMTPConfig{Addr: "mail.example.com:25"})
	if err := s.Send(context.Background(), alert(models.SeverityP1), nil); !errors.Is(err, errNoRecipients) {
		t.Fatalf("expected errNoRecipients, got %v", err)
	}
}

func TestShortText_KeepsRunesWhole(t *testing.T) {
	t.Parallel()
	a := alert(models.SeverityP1)
	a.Message = strings.Repeat("temperatura elevada no mancal ", 3) + strings.Repeat("é", 200)

	got := shortText(a)
	if n := utf8.RuneCountInString(got); n != smsMaxRunes {
		t.Fatalf("expected %d runes, got %d", smsMaxRunes, n)
	}
	if !utf8.ValidString(got) || !strings.HasSuffix(got, "...") {
		t.Fatalf("bad truncation: %q", got)
	}

	a.Message = "ok"
	if got := shortText(a); strings.HasSuffix(got, "...") {
		t.Fatalf("short text truncated: %q", got)
	}
}

func TestSMSSender(t *testing.T) {
	t.Parallel()
	var got smsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	s := NewSMSSender(srv.URL, "tok", srv.Client())
	if err := s.Send(context.Background(), alert(models.SeverityP1), []string{"+15550100"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.AlertID != "a-1" || len(got.To) != 1 || utf8.RuneCountInString(got.Message) > smsMaxRunes {
		t.Fatalf("unexpected gateway payload: %+v", got)
	}

	bad := NewSMSSender(srv.URL, "wrong", srv.Client())
	if err := bad.Send(context.Background(), alert(models.SeverityP1), []string{"+15550100"}); err == nil {
		t.Fatalf("expected gateway error")
	}
}

type fakePublisher struct {
	subject string
	data    []byte
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return nil
}

func TestNATSPublisher_PublishesAlertJSON(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	p := &NATSPublisher{conn: pub, subject: "alerts.promoted"}

	if err := p.Send(context.Background(), alert(models.SeverityP1), nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(pub.data, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if pub.subject != "alerts.promoted" || decoded["equipamento_id"] != "MOTOR-001" {
		t.Fatalf("unexpected publish %s %v", pub.subject, decoded)
	}
}
