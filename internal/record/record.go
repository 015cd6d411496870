// Package record provides the data structure passed from the wire codec and
// reassembler down to the destination registry.
// Adapted from the teacher's driver/log/logline package.
package record

// Kind identifies one of the fixed destination families a record can be
// routed to. The set is closed; new kinds are not added at runtime.
type Kind uint8

const (
	// Text is the privileged destination: unframed data and fallback
	// writes always land here, and it is open for the entire lifetime of
	// a collector.
	Text Kind = iota
	CSV
	JSON
	Audit
	Slow

	numKinds
)

// String returns the canonical lower-case name used in log messages. The
// meta-info file uses its own keys (stderr, csvlog, ...; see metaInfoKey in
// internal/rotation).
func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case CSV:
		return "csv"
	case JSON:
		return "json"
	case Audit:
		return "audit"
	case Slow:
		return "slow"
	default:
		return "unknown"
	}
}

// Kinds returns all destination kinds in the fixed processing order used by
// the rotation engine and meta-info writer: TEXT, CSV, JSON, AUDIT, SLOW.
func Kinds() []Kind {
	return []Kind{Text, CSV, JSON, Audit, Slow}
}

// Record is one complete, reassembled message bound for a single
// destination. Payload is byte-faithful: no newline is appended and none is
// assumed to be present.
type Record struct {
	PID     uint32
	Dest    Kind
	Payload []byte
}

// New creates a Record. The payload slice is retained, not copied; callers
// that reuse their buffer must pass a copy.
func New(pid uint32, dest Kind, payload []byte) *Record {
	return &Record{PID: pid, Dest: dest, Payload: payload}
}
