package health

import (
	"context"
	"errors"
	"testing"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(pinger{}, pinger{})
	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("status = %s, want %s", report.Status, Healthy)
	}
	if report.Checks["index"] != CheckOK || report.Checks["queue"] != CheckOK {
		t.Errorf("checks = %v", report.Checks)
	}
}

func TestCheck_IndexDown(t *testing.T) {
	svc := New(pinger{err: errors.New("refused")}, pinger{})
	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("status = %s, want %s", report.Status, Degraded)
	}
	if report.Checks["index"] != CheckError {
		t.Errorf("checks = %v", report.Checks)
	}
}

func TestCheck_NilQueueSkipped(t *testing.T) {
	svc := New(pinger{}, nil)
	report := svc.Check(context.Background())
	if _, ok := report.Checks["queue"]; ok {
		t.Errorf("nil queue must not be probed: %v", report.Checks)
	}
	if report.Status != Healthy {
		t.Errorf("status = %s", report.Status)
	}
}
