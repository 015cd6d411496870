package rotation

import "github.com/sysloggerd/collector/internal/record"

// Config is the slice of the flat configuration record (spec.md §6) the
// rotation engine needs on every tick. It is rebuilt by internal/config on
// startup and on every reload.
type Config struct {
	Directory           string
	FilenamePattern     string // strftime-style pattern, e.g. "pg.log"
	RotationAgeMinutes  int    // 0 disables time-based rotation
	RotationSizeKB      int64  // 0 disables size-based rotation
	TruncateOnRotation  bool
	FileMode            uint32 // permission bits; IWUSR is always forced on
	EnabledDestinations map[record.Kind]bool
	CollectorIndex      int // inserted into AUDIT filenames as "_<i>"

	// AuditFullBuffer mirrors polar_enable_syslog_file_buffer: when set,
	// the AUDIT destination is opened with full buffering instead of
	// writing straight through to the file on every record.
	AuditFullBuffer bool

	// RetentionMain/Audit/Slow are the per-family file-count caps consumed
	// by internal/retention; negative disables a family's cap.
	RetentionMain  int
	RetentionAudit int
	RetentionSlow  int
}

// Enabled reports whether kind is turned on. TEXT is always considered
// enabled regardless of the map, matching spec.md §3's TEXT-is-privileged
// invariant.
func (c *Config) Enabled(kind record.Kind) bool {
	if kind == record.Text {
		return true
	}
	return c.EnabledDestinations[kind]
}
