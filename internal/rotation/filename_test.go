package rotation

import (
	"testing"
	"time"

	"github.com/sysloggerd/collector/internal/record"
)

func TestFormatPatternSubstitutesDirectives(t *testing.T) {
	ts := time.Date(2026, 7, 29, 14, 5, 9, 0, time.UTC)
	got := formatPattern("pg-%Y-%m-%d_%H%M%S.log", ts)
	want := "pg-2026-07-29_140509.log"
	if got != want {
		t.Errorf("formatPattern() = %q, want %q", got, want)
	}
}

func TestFormatPatternConstantNameHasNoDirectives(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := formatPattern("pg.log", ts); got != "pg.log" {
		t.Errorf("formatPattern() = %q, want %q", got, "pg.log")
	}
}

func TestGetnameStripsTrailingLogBeforeSuffix(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := getname("/var/log", "pg.log", ts, record.CSV, 0)
	want := "/var/log/pg.csv"
	if got != want {
		t.Errorf("getname() = %q, want %q", got, want)
	}
}

func TestGetnameAuditInsertsCollectorIndex(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := getname("/var/log", "pg.log", ts, record.Audit, 2)
	want := "/var/log/pg_2.audit.log"
	if got != want {
		t.Errorf("getname() = %q, want %q", got, want)
	}
}
