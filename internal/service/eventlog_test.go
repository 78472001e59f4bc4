package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"predictive_alerts/internal/models"
)

// fakeEventRepo records the arguments of List.
type fakeEventRepo struct {
	gotFrom        time.Time
	gotTo          time.Time
	gotType        string
	gotEquipmentID string

	events []models.PipelineEvent
	err    error
	calls  int
}

func (f *fakeEventRepo) List(_ context.Context, from, to time.Time, typ, equipmentID string) ([]models.PipelineEvent, error) {
	f.calls++
	f.gotFrom, f.gotTo, f.gotType, f.gotEquipmentID = from, to, typ, equipmentID
	return f.events, f.err
}

func (f *fakeEventRepo) Append(context.Context, models.PipelineEvent) error { return nil }

func TestNormalizeToUTC(t *testing.T) {
	t.Parallel()

	local := time.Date(2025, time.August, 1, 12, 34, 56, 0, time.FixedZone("UTC+3", 3*3600))
	got := normalizeToUTC(local)
	if got.Location() != time.UTC || !got.Equal(local) {
		t.Fatalf("unexpected result: %v", got)
	}
	if !normalizeToUTC(time.Time{}).IsZero() {
		t.Fatalf("zero time must stay zero")
	}
}

func TestNormalizeAndValidateFilter(t *testing.T) {
	t.Parallel()

	fromLocal := time.Date(2025, time.September, 10, 10, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))
	toUTC := time.Date(2025, time.September, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      LogFilter
		want    LogFilter
		wantErr error
	}{
		{name: "empty ok", in: LogFilter{}, want: LogFilter{}},
		{
			name: "from after to",
			in: LogFilter{
				From: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC),
			},
			wantErr: errInvalidTimeRange,
		},
		{
			name: "normalize tz type and equipment",
			in:   LogFilter{From: fromLocal, To: toUTC, Type: " suppressed ", EquipmentID: " MOTOR-001 "},
			want: LogFilter{
				From:        time.Date(2025, time.September, 10, 8, 0, 0, 0, time.UTC),
				To:          toUTC,
				Type:        "SUPPRESSED",
				EquipmentID: "MOTOR-001",
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := normalizeAndValidateFilter(tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v; got %v", tc.wantErr, err)
			}
			if tc.wantErr != nil {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("range errors must be invalid input: %v", err)
				}
				return
			}
			if !got.From.Equal(tc.want.From) || !got.To.Equal(tc.want.To) ||
				got.Type != tc.want.Type || got.EquipmentID != tc.want.EquipmentID {
				t.Fatalf("got %+v; want %+v", got, tc.want)
			}
		})
	}
}

func TestEventLogService_List_DelegatesNormalizedParams(t *testing.T) {
	t.Parallel()

	frepo := &fakeEventRepo{events: []models.PipelineEvent{{EventID: "1"}}}
	svc := NewEventLogService(frepo)

	fromLocal := time.Date(2025, time.October, 1, 10, 0, 0, 0, time.FixedZone("UTC+5", 5*3600))
	out, err := svc.List(context.Background(), LogFilter{From: fromLocal, Type: " promoted", EquipmentID: "PUMP-7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || frepo.calls != 1 {
		t.Fatalf("unexpected events %+v calls=%d", out, frepo.calls)
	}
	if want := time.Date(2025, time.October, 1, 5, 0, 0, 0, time.UTC); !frepo.gotFrom.Equal(want) {
		t.Fatalf("repo gotFrom=%v; want %v", frepo.gotFrom, want)
	}
	if !frepo.gotTo.IsZero() || frepo.gotType != "PROMOTED" || frepo.gotEquipmentID != "PUMP-7" {
		t.Fatalf("unexpected repo args: to=%v type=%q eq=%q", frepo.gotTo, frepo.gotType, frepo.gotEquipmentID)
	}
}

func TestEventLogService_List_ValidationSkipsRepo(t *testing.T) {
	t.Parallel()

	frepo := &fakeEventRepo{}
	svc := NewEventLogService(frepo)

	_, err := svc.List(context.Background(), LogFilter{
		From: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, errInvalidTimeRange) || frepo.calls != 0 {
		t.Fatalf("err=%v calls=%d", err, frepo.calls)
	}
}

func TestEventLogService_List_RepoErrorPropagation(t *testing.T) {
	t.Parallel()

	frepo := &fakeEventRepo{err: errors.New("db down")}
	svc := NewEventLogService(frepo)

	if _, err := svc.List(context.Background(), LogFilter{}); !errors.Is(err, frepo.err) {
		t.Fatalf("expected repo error to propagate; got %v", err)
	}
}
