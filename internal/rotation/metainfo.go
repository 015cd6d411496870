package rotation

import (
	"fmt"
	"os"
	"strings"

	"github.com/sysloggerd/collector/internal/record"
)

// MetaInfoFile is the path spec.md §6 calls LOG_METAINFO_DATAFILE: a small
// descriptor announcing the currently active filename per destination.
const MetaInfoFile = "current_logfiles"

func metaInfoKey(kind record.Kind) string {
	switch kind {
	case record.Text:
		return "stderr"
	case record.CSV:
		return "csvlog"
	case record.JSON:
		return "jsonlog"
	case record.Audit:
		return "auditlog"
	case record.Slow:
		return "slowlog"
	default:
		return kind.String()
	}
}

// writeMetaInfo rewrites the meta-info file atomically (tmp file + rename)
// with one "<kind> <filename>" line per currently enabled, open
// destination. If no destination is open, the file is removed instead,
// matching update_metainfo_datafile's early-return-and-unlink branch.
func writeMetaInfo(dir string, cfg *Config, names map[record.Kind]string) error {
	path := dir + "/" + MetaInfoFile

	anyOpen := false
	var b strings.Builder
	for _, kind := range record.Kinds() {
		name, ok := names[kind]
		if !ok || !cfg.Enabled(kind) {
			continue
		}
		anyOpen = true
		fmt.Fprintf(&b, "%s %s\n", metaInfoKey(kind), name)
	}

	if !anyOpen {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	tmp := path + ".tmp"
	mode := os.FileMode(cfg.FileMode | 0o200) // IWUSR forced on, per spec.md §6
	if err := os.WriteFile(tmp, []byte(b.String()), mode); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
