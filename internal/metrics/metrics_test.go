package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotent(t *testing.T) {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestHelpersRecordAfterRegister(t *testing.T) {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("register: %v", err)
	}
	IncCycle()
	IncCommand()
	IncAdjustment("svisor1")
	SetSupervisorFailed("svisor1", true)
	SetEntryState("system/web", "running", true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"simplevisor_engine_cycles_total",
		"simplevisor_engine_commands_total",
		"simplevisor_supervisor_adjustments_total",
		"simplevisor_supervisor_failed",
		"simplevisor_entry_state",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}
