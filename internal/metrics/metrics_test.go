package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.Registry() == nil {
		t.Error("registry not initialised")
	}
}

func TestDefault(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() should return same instance")
	}
}

func TestRecordTriggerAndAction(t *testing.T) {
	m := New()
	m.RecordTrigger("started")
	m.RecordTrigger("started")
	m.RecordTrigger("queued")
	m.RecordAction("taken")

	if got := testutil.ToFloat64(m.triggers.WithLabelValues("started")); got != 2 {
		t.Errorf("expected 2 started triggers, got %v", got)
	}
	s := m.Snapshot()
	if s.Triggers["queued"] != 1 {
		t.Errorf("expected 1 queued trigger in snapshot, got %d", s.Triggers["queued"])
	}
	if s.Actions["taken"] != 1 {
		t.Errorf("expected 1 taken action in snapshot, got %d", s.Actions["taken"])
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.RecordAlarmRung()
	m.RecordReset()
	m.RecordPersistFailure()
	m.RecordGatewayFailure()
	m.RecordGatewayFailure()

	s := m.Snapshot()
	if s.AlarmsRung != 1 || s.Resets != 1 || s.PersistFailures != 1 {
		t.Errorf("unexpected snapshot: %+v", s)
	}
	if s.GatewayFailures != 2 {
		t.Errorf("expected 2 gateway failures, got %d", s.GatewayFailures)
	}
	if got := testutil.ToFloat64(m.gatewayFailures); got != 2 {
		t.Errorf("expected prometheus counter 2, got %v", got)
	}
}

func TestRecordRequest(t *testing.T) {
	m := New()
	m.RecordRequest(true, 10*time.Millisecond)
	m.RecordRequest(false, 20*time.Millisecond)

	s := m.Snapshot()
	if s.RequestsTotal != 2 {
		t.Errorf("expected 2 requests, got %d", s.RequestsTotal)
	}
	if s.RequestsFailed != 1 {
		t.Errorf("expected 1 failed request, got %d", s.RequestsFailed)
	}
}

func TestGauges(t *testing.T) {
	m := New()
	m.SetMedications(3)
	m.SetAlarm(2, 1)

	s := m.Snapshot()
	if s.Medications != 3 || s.AlarmState != 2 || s.QueueLength != 1 {
		t.Errorf("unexpected gauges: %+v", s)
	}
	if got := testutil.ToFloat64(m.alarmState); got != 2 {
		t.Errorf("expected alarm_state 2, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordAlarmRung()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "medremind_alarms_rung_total 1") {
		t.Error("handler output missing alarms_rung_total")
	}
}
