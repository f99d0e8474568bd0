package registry

import (
	"errors"
	"testing"
)

func TestRegisterLifecycle(t *testing.T) {
	r := New()
	if err := r.Register("ETH_USDC_PERP", "15m", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	m, ok := r.Get("ETH_USDC_PERP", "15m")
	if !ok {
		t.Fatal("Get: not found after register")
	}
	if m.Status != StatusRegistered {
		t.Errorf("status = %s, want REGISTERED", m.Status)
	}
	if m.StartedAt.IsZero() {
		t.Error("StartedAt not stamped")
	}

	r.Activate("ETH_USDC_PERP", "15m")
	if m, _ := r.Get("ETH_USDC_PERP", "15m"); m.Status != StatusActive {
		t.Errorf("status = %s, want ACTIVE", m.Status)
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	r := New()
	if err := r.Register("ETH_USDC_PERP", "15m", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("ETH_USDC_PERP", "15m", nil); !errors.Is(err, ErrAlreadyMonitored) {
		t.Fatalf("duplicate register = %v, want ErrAlreadyMonitored", err)
	}
	// Different interval is a distinct key.
	if err := r.Register("ETH_USDC_PERP", "1h", nil); err != nil {
		t.Fatalf("different interval: %v", err)
	}
}

func TestDeregisterCancelsAndAllowsRestart(t *testing.T) {
	r := New()
	cancelled := false
	if err := r.Register("ETH_USDC_PERP", "15m", func() { cancelled = true }); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := r.Deregister("ETH_USDC_PERP", "15m"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if !cancelled {
		t.Error("deregister should invoke the cancel func")
	}
	if m, _ := r.Get("ETH_USDC_PERP", "15m"); m.Status != StatusStopped {
		t.Errorf("status = %s, want STOPPED", m.Status)
	}

	// Stopped keys may be re-registered.
	if err := r.Register("ETH_USDC_PERP", "15m", nil); err != nil {
		t.Fatalf("re-register after stop: %v", err)
	}
}

func TestDeregisterUnknownKey(t *testing.T) {
	r := New()
	if err := r.Deregister("BTC_USDC_PERP", "15m"); !errors.Is(err, ErrNotMonitored) {
		t.Fatalf("err = %v, want ErrNotMonitored", err)
	}
}

func TestListSkipsStopped(t *testing.T) {
	r := New()
	r.Register("ETH_USDC_PERP", "15m", nil)
	r.Register("BTC_USDC_PERP", "15m", nil)
	r.Deregister("BTC_USDC_PERP", "15m")

	list := r.List()
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if list[0].Symbol != "ETH_USDC_PERP" {
		t.Errorf("listed %s, want ETH_USDC_PERP", list[0].Symbol)
	}
}

func TestRecordEvaluationAndDegraded(t *testing.T) {
	r := New()
	r.Register("ETH_USDC_PERP", "15m", nil)

	r.RecordEvaluation("ETH_USDC_PERP", "15m", 1706400000000, "DEEP")
	m, _ := r.Get("ETH_USDC_PERP", "15m")
	if m.LastEvaluated != 1706400000000 || m.LastMode != "DEEP" {
		t.Errorf("evaluation = %d/%s", m.LastEvaluated, m.LastMode)
	}

	if r.Degraded("ETH_USDC_PERP", "15m") {
		t.Error("fresh monitor should not be degraded")
	}
	r.MarkDegraded("ETH_USDC_PERP", "15m")
	if !r.Degraded("ETH_USDC_PERP", "15m") {
		t.Error("MarkDegraded should stick")
	}
	// Unknown keys read as not degraded.
	if r.Degraded("XRP_USDC_PERP", "15m") {
		t.Error("unknown key should not be degraded")
	}
}

func TestIntervalNormalization(t *testing.T) {
	r := New()
	if err := r.Register("ETH_USDC_PERP", "15M", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, ok := r.Get("ETH_USDC_PERP", "15m"); !ok {
		t.Error("interval casing should normalize to the same key")
	}
}
