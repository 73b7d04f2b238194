package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/boshu2/driftwatch/internal/monitor"
)

func TestScanResult(t *testing.T) {
	fail := monitor.TaskError{TaskID: "bad", Err: errors.New("schema unsupported")}

	if err := scanResult(false, nil); err != nil {
		t.Errorf("clean scan returned %v, want nil", err)
	}

	if err := scanResult(true, nil); !errors.Is(err, errDriftFound) {
		t.Errorf("drifted scan returned %v, want errDriftFound", err)
	}

	// Drift takes precedence over per-task failures in the exit code.
	if err := scanResult(true, []monitor.TaskError{fail}); !errors.Is(err, errDriftFound) {
		t.Errorf("drift + failure returned %v, want errDriftFound", err)
	}

	// A scan with failed tasks and no drift is still not a clean exit.
	err := scanResult(false, []monitor.TaskError{fail})
	if err == nil {
		t.Fatal("partial failure returned nil, want operational error")
	}
	if errors.Is(err, errDriftFound) {
		t.Error("partial failure mapped to the drift exit instead of an error")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("failure error %q does not name the failed task", err)
	}
}
