package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sysloggerd/collector/internal/record"
	"github.com/sysloggerd/collector/internal/testutil"
)

func writeConfigFile(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "collector.yaml")
	testutil.FatalIfErr(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	l, err := Load("")
	testutil.FatalIfErr(t, err)

	flat, err := l.Snapshot()
	testutil.FatalIfErr(t, err)

	if flat.LogDirectory != "log" {
		t.Errorf("LogDirectory = %q, want default %q", flat.LogDirectory, "log")
	}
	if flat.LogRotationAge != 24*60 {
		t.Errorf("LogRotationAge = %d, want default %d", flat.LogRotationAge, 24*60)
	}
	if flat.MaxLogFiles != -1 {
		t.Errorf("MaxLogFiles = %d, want -1 (disabled)", flat.MaxLogFiles)
	}
}

func TestToRotationConfigParsesSizeAndMode(t *testing.T) {
	flat := &Flat{
		LogDirectory:    "/var/log/x",
		LogFilename:     "pg.log",
		LogRotationSize: "10MB",
		LogFileMode:     "0640",
		LogDestination:  "stderr,csvlog,auditlog",
	}
	cfg, err := ToRotationConfig(flat, 2)
	testutil.FatalIfErr(t, err)

	if cfg.RotationSizeKB != 10*1024 {
		t.Errorf("RotationSizeKB = %d, want %d", cfg.RotationSizeKB, 10*1024)
	}
	if cfg.FileMode != 0o640|0o200 {
		t.Errorf("FileMode = %o, want %o", cfg.FileMode, 0o640|0o200)
	}
	if cfg.CollectorIndex != 2 {
		t.Errorf("CollectorIndex = %d, want 2", cfg.CollectorIndex)
	}
	if !cfg.EnabledDestinations[record.CSV] || !cfg.EnabledDestinations[record.Audit] {
		t.Errorf("EnabledDestinations = %v, want CSV and Audit set", cfg.EnabledDestinations)
	}
	if cfg.EnabledDestinations[record.JSON] || cfg.EnabledDestinations[record.Slow] {
		t.Errorf("EnabledDestinations = %v, want JSON and Slow unset", cfg.EnabledDestinations)
	}
}

func TestToRotationConfigCarriesAuditFullBuffer(t *testing.T) {
	flat := &Flat{LogRotationSize: "10MB", SyslogFileBuffer: true}
	cfg, err := ToRotationConfig(flat, 0)
	testutil.FatalIfErr(t, err)
	if !cfg.AuditFullBuffer {
		t.Error("AuditFullBuffer = false, want true when polar_enable_syslog_file_buffer is set")
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := testutil.TestTempDir(t)
	path := writeConfigFile(t, dir, "log_directory: /custom\nlog_rotation_age: 30\n")

	l, err := Load(path)
	testutil.FatalIfErr(t, err)

	flat, err := l.Snapshot()
	testutil.FatalIfErr(t, err)
	if flat.LogDirectory != "/custom" {
		t.Errorf("LogDirectory = %q, want /custom", flat.LogDirectory)
	}
	if flat.LogRotationAge != 30 {
		t.Errorf("LogRotationAge = %d, want 30", flat.LogRotationAge)
	}
}
