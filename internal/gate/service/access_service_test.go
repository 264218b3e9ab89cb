package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// ── Input validation ─────────────────────────────────────────────────────────

func TestValidate_EmptyCodeRejectedWithoutEvent(t *testing.T) {
	f := newFixture(t)
	svc := f.accessService(nil)

	for _, code := range []string{"", "   ", "\t\n"} {
		_, err := svc.Validate(context.Background(), code)
		if !errors.Is(err, service.ErrInvalidCode) {
			t.Errorf("Validate(%q) err = %v, want ErrInvalidCode", code, err)
		}
	}
	if n := len(f.events.Events()); n != 0 {
		t.Errorf("expected no events for rejected input, got %d", n)
	}
}

// ── Unknown credential ───────────────────────────────────────────────────────

func TestValidate_UnknownCodeDeniedWithNullRefs(t *testing.T) {
	f := newFixture(t)
	svc := f.accessService(nil)

	for _, code := range []string{"FF:FF:FF:FF", "de:ad:00:00", " 00:00:00:01 "} {
		before := len(f.events.Events())

		resp, err := svc.Validate(context.Background(), code)
		if err != nil {
			t.Fatalf("Validate(%q): %v", code, err)
		}
		if resp.Granted || resp.EventKind != types.EventDeniedAccess || resp.Sensor != nil {
			t.Errorf("Validate(%q) = %+v", code, resp)
		}
		if resp.Message != "Sensor not registered" {
			t.Errorf("message = %q", resp.Message)
		}

		events := f.events.Events()
		if len(events) != before+1 {
			t.Fatalf("Validate(%q) logged %d events, want exactly 1", code, len(events)-before)
		}
		ev := events[len(events)-1]
		if ev.SensorID != nil || ev.UserID != nil || ev.DepartmentID != nil {
			t.Errorf("unknown code event must have null refs, got %+v", ev)
		}
		if ev.Kind != types.EventDeniedAccess || ev.Outcome != types.OutcomeDenied {
			t.Errorf("event kind/outcome = %s/%s", ev.Kind, ev.Outcome)
		}
		if ev.Code != types.NormalizeCode(code) {
			t.Errorf("event code = %q, want normalized %q", ev.Code, types.NormalizeCode(code))
		}
	}

	if s := f.barrier.Status(); s.Status != types.BarrierClosed {
		t.Errorf("barrier = %s, want CLOSED", s.Status)
	}
}

// ── Active credential ────────────────────────────────────────────────────────

func TestValidate_ActiveGrantsAndOpensBarrier(t *testing.T) {
	f := newFixture(t)
	svc := f.accessService(nil)

	resp, err := svc.Validate(context.Background(), "A1:B2:C3:D4")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !resp.Granted || resp.EventKind != types.EventValidAccess {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Message != "Access granted - Dept 101 Torre A" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Sensor == nil || resp.Sensor.Department != "101 - Torre A" || resp.Sensor.Kind != types.SensorCard {
		t.Errorf("sensor = %+v", resp.Sensor)
	}

	s := f.barrier.Status()
	if s.Status != types.BarrierOpen {
		t.Fatalf("barrier = %s, want OPEN", s.Status)
	}
	if s.OpenSince == nil || !s.OpenSince.Equal(epoch) {
		t.Errorf("open since = %v, want %v", s.OpenSince, epoch)
	}
	if s.Department == nil || *s.Department != 1 {
		t.Errorf("barrier department = %v, want 1", s.Department)
	}
	if s.User == nil || *s.User != 1 {
		t.Errorf("barrier user = %v, want registering user 1", s.User)
	}

	events := f.events.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Outcome != types.OutcomeGranted || *ev.SensorID != f.sensorID["A1:B2:C3:D4"] || *ev.DepartmentID != 1 {
		t.Errorf("event = %+v", ev)
	}
}

func TestValidate_TowerlessDepartmentLabel(t *testing.T) {
	f := newFixture(t)
	resp, err := f.accessService(nil).Validate(context.Background(), "E5:F6:G7:H8")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if resp.Message != "Access granted - Dept 303" || resp.Sensor.Department != "303" {
		t.Errorf("message/department = %q/%q", resp.Message, resp.Sensor.Department)
	}
	if resp.Sensor.Alias != "" {
		t.Errorf("alias = %q, want empty", resp.Sensor.Alias)
	}
}

func TestValidate_NormalizationResolvesSameSensor(t *testing.T) {
	f := newFixture(t)
	svc := f.accessService(nil)

	lower, err := svc.Validate(context.Background(), "a1:b2:c3:d4")
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	upper, err := svc.Validate(context.Background(), "A1:B2:C3:D4")
	if err != nil {
		t.Fatalf("upper: %v", err)
	}
	if lower.Sensor == nil || upper.Sensor == nil || lower.Sensor.ID != upper.Sensor.ID {
		t.Fatalf("sensors differ: %+v vs %+v", lower.Sensor, upper.Sensor)
	}
	if !lower.Granted || !upper.Granted {
		t.Error("both spellings should be granted")
	}
}

// ── Denied credentials ───────────────────────────────────────────────────────

func TestValidate_DeniedStatusesLeaveBarrierUnchanged(t *testing.T) {
	cases := []struct {
		code    string
		kind    types.EventKind
		message string
	}{
		{"11:22:33:44", types.EventSensorBlocked, "Sensor BLOCKED - 11:22:33:44"},
		{"55:66:77:88", types.EventSensorLost, "Sensor reported LOST - Llavero perdido"},
		{"AA:BB:CC:DD", types.EventDeniedAccess, "Sensor INACTIVE - AA:BB:CC:DD"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			f := newFixture(t)
			svc := f.accessService(nil)
			before := f.barrier.Status()

			resp, err := svc.Validate(context.Background(), strings.ToLower(tc.code))
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if resp.Granted {
				t.Fatal("expected denial")
			}
			if resp.EventKind != tc.kind || resp.Message != tc.message {
				t.Errorf("kind/message = %s/%q, want %s/%q", resp.EventKind, resp.Message, tc.kind, tc.message)
			}
			if resp.Sensor == nil || resp.Sensor.Department != "202 - Torre A" {
				t.Errorf("sensor = %+v", resp.Sensor)
			}

			after := f.barrier.Status()
			if after.Status != before.Status || after.LastEvent != nil || !after.LastUpdate.Equal(before.LastUpdate) {
				t.Errorf("barrier changed: before=%+v after=%+v", before, after)
			}

			events := f.events.Events()
			if len(events) != 1 || events[0].Kind != tc.kind || events[0].Outcome != types.OutcomeDenied {
				t.Errorf("events = %+v", events)
			}
		})
	}
}

func TestValidate_DeniedDoesNotCloseOpenBarrier(t *testing.T) {
	f := newFixture(t)
	svc := f.accessService(nil)

	if _, err := svc.Validate(context.Background(), "A1:B2:C3:D4"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	f.clock.Advance(2 * time.Second)
	if _, err := svc.Validate(context.Background(), "11:22:33:44"); err != nil {
		t.Fatalf("deny: %v", err)
	}

	s := f.barrier.Status()
	if s.Status != types.BarrierOpen || *s.LastEvent != types.EventValidAccess {
		t.Errorf("barrier = %s/%s, want OPEN/VALID_ACCESS", s.Status, *s.LastEvent)
	}
}

// ── Persistence failures ─────────────────────────────────────────────────────

func TestValidate_EventStoreFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	svc := f.accessService(failingEventStore{})

	resp, err := svc.Validate(context.Background(), "A1:B2:C3:D4")
	if err != nil {
		t.Fatalf("Validate should succeed despite audit failure: %v", err)
	}
	if !resp.Granted {
		t.Error("decision must still be returned")
	}
	if s := f.barrier.Status(); s.Status != types.BarrierOpen {
		t.Errorf("barrier = %s, want OPEN", s.Status)
	}
	if f.metrics.eventFails != 1 {
		t.Errorf("event write failures = %d, want 1", f.metrics.eventFails)
	}
}

func TestValidate_RegistryFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	svc := service.NewAccessService(failingSensorStore{}, f.events, f.barrier, f.clock, silentLogger(), nil)

	if _, err := svc.Validate(context.Background(), "A1:B2:C3:D4"); err == nil {
		t.Fatal("expected registry error")
	}
	if n := len(f.events.Events()); n != 0 {
		t.Errorf("no decision means no event, got %d", n)
	}
	if s := f.barrier.Status(); s.Status != types.BarrierClosed {
		t.Errorf("barrier = %s, want CLOSED", s.Status)
	}
}

// ── Auto-close through the service ───────────────────────────────────────────

func TestValidate_RepeatedGrantRestartsAutoClose(t *testing.T) {
	f := newFixture(t)
	svc := f.accessService(nil)

	_, _ = svc.Validate(context.Background(), "A1:B2:C3:D4")
	f.clock.Advance(8 * time.Second)
	_, _ = svc.Validate(context.Background(), "A1:B2:C3:D4")
	f.clock.Advance(8 * time.Second)

	if s := f.barrier.Status(); s.Status != types.BarrierOpen {
		t.Fatalf("barrier 16s after first grant = %s, want OPEN", s.Status)
	}
	f.clock.Advance(2 * time.Second)

	s := f.barrier.Status()
	if s.Status != types.BarrierClosed || *s.LastEvent != types.EventAutoClose {
		t.Errorf("barrier = %s/%v, want CLOSED/AUTO_CLOSE", s.Status, s.LastEvent)
	}
}
