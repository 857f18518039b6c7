package logfields

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Branch", KeyBranch, "main", Branch("main")},
		{"Commit", KeyCommit, "abc123", Commit("abc123")},
		{"Remote", KeyRemote, "origin", Remote("origin")},
		{"CycleID", KeyCycleID, "c1", CycleID("c1")},
		{"Trigger", KeyTrigger, "local", Trigger("local")},
		{"Op", KeyOp, "sync", Op("sync")},
		{"Outcome", KeyOutcome, "success", Outcome("success")},
		{"BackupBranch", KeyBackup, "backup_20240101_000000", BackupBranch("backup_20240101_000000")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

func TestNumericHelpers(t *testing.T) {
	if v := Pending(3); v.Key != KeyPending || v.Value.Int64() != 3 {
		t.Fatalf("Pending mismatch: %v", v)
	}
	if v := Behind(2); v.Key != KeyBehind || v.Value.Int64() != 2 {
		t.Fatalf("Behind mismatch: %v", v)
	}
	if v := Duration(1500 * time.Microsecond); v.Key != KeyDurationMS || v.Value.Float64() != 1.5 {
		t.Fatalf("Duration mismatch: %v", v)
	}
}

// TestErrorHelper ensures Error() handles nil and non-nil errors predictably.
func TestErrorHelper(t *testing.T) {
	attr := Error(nil)
	if attr.Key != KeyError || attr.Value.String() != "" {
		t.Fatalf("unexpected nil error attr: %v", attr)
	}
	if attr = Error(errors.New("err-test")); attr.Value.String() != "err-test" {
		t.Fatalf("Expected 'err-test', got %s", attr.Value.String())
	}
}
