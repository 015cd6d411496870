package rotation

import (
	"fmt"
	"strings"
	"time"

	"github.com/sysloggerd/collector/internal/record"
)

// suffix returns the filename suffix for a destination kind, matching
// spec.md §6's on-disk layout table.
func suffix(kind record.Kind) string {
	switch kind {
	case record.Text:
		return ".log"
	case record.CSV:
		return ".csv"
	case record.JSON:
		return ".json"
	case record.Audit:
		return ".audit.log"
	case record.Slow:
		return ".slow.log"
	default:
		return ".log"
	}
}

// strftimeDirectives maps the subset of strftime conversion specifiers the
// Log_filename pattern is documented to use onto Go's reference-time
// layout. Unknown directives pass through literally, matching pg_strftime's
// permissive behavior for codes it doesn't recognize.
var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
	'Z': "MST",
	'z': "-0700",
	'j': "002",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
}

// formatPattern expands a strftime-style pattern (the Log_filename
// configuration value) against t, substituting each recognized "%X"
// directive with its Go time-layout equivalent and rendering the whole
// string through time.Format in one pass. A literal "%%" yields one "%".
func formatPattern(pattern string, t time.Time) string {
	var layout strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' || i == len(pattern)-1 {
			layout.WriteByte(c)
			continue
		}
		i++
		d := pattern[i]
		if d == '%' {
			layout.WriteByte('%')
			continue
		}
		if l, ok := strftimeDirectives[d]; ok {
			layout.WriteString(l)
		} else {
			layout.WriteByte('%')
			layout.WriteByte(d)
		}
	}
	return t.Format(layout.String())
}

// getname constructs the filename for kind at the given timestamp, under
// dir, applying pattern as a strftime template. It mirrors syslogger.c's
// logfile_getname: any trailing ".log" produced by the pattern is stripped
// before the destination suffix is appended, and AUDIT additionally gets
// "_<collectorIndex>" inserted ahead of its suffix.
func getname(dir, pattern string, t time.Time, kind record.Kind, collectorIndex int) string {
	name := formatPattern(pattern, t)
	name = strings.TrimSuffix(name, ".log")

	if kind == record.Audit {
		name += fmt.Sprintf("_%d", collectorIndex)
	}
	name += suffix(kind)

	if dir == "" {
		return name
	}
	return dir + "/" + name
}
