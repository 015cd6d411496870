// Package retention implements the C5 retention sweeper: a single pass
// over the log directory that unlinks the lexicographically oldest file in
// whichever family has grown past its configured cap.
//
// Grounded on syslogger.c's polar_remove_old_syslog_files (the exact
// three-family grouping by suffix, "first '%' position" prefix rule, and
// single-oldest-per-tick eviction spec.md §4.5 describes); the
// smallest-candidate-without-a-full-sort tracking mirrors the idea behind
// zaibyte-nanozap/zaproll's heap-based Backups, adapted here to three
// independent running minimums computed in one directory pass rather than
// a persistent heap, since retention only ever needs "the current
// smallest", not an ordered structure maintained across calls.
package retention

import (
	"os"
	"path/filepath"
	"strings"
)

// Family identifies one of the three groups retention caps independently.
type Family int

const (
	FamilyMain Family = iota
	FamilyAudit
	FamilySlow
)

// Caps holds the configured maximum file count per family; a negative
// value disables the cap for that family, matching
// polar_max_log_files/polar_max_auditlog_files/polar_max_slowlog_files.
type Caps struct {
	Main  int
	Audit int
	Slow  int
}

func (c Caps) forFamily(f Family) int {
	switch f {
	case FamilyAudit:
		return c.Audit
	case FamilySlow:
		return c.Slow
	default:
		return c.Main
	}
}

// AuditSuffix and SlowSuffix match the suffixes internal/rotation appends
// to audit and slow-log filenames.
const (
	AuditSuffix = ".audit.log"
	SlowSuffix  = ".slow.log"
)

// Sweep enumerates dir once, groups entries whose name begins with the
// literal prefix of pattern (the substring before its first '%') into the
// three families by suffix, and unlinks the lexicographically smallest
// filename in any family whose count exceeds its configured cap. It
// returns the paths it removed.
func Sweep(dir, pattern string, caps Caps) ([]string, error) {
	if caps.Main < 0 && caps.Audit < 0 && caps.Slow < 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	prefix := pattern
	if i := strings.IndexByte(pattern, '%'); i >= 0 {
		prefix = pattern[:i]
	}

	counts := map[Family]int{}
	oldest := map[Family]string{}

	for _, ent := range entries {
		name := ent.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		var fam Family
		switch {
		case strings.Contains(name, AuditSuffix):
			fam = FamilyAudit
		case strings.Contains(name, SlowSuffix):
			fam = FamilySlow
		default:
			fam = FamilyMain
		}

		counts[fam]++
		if cur, ok := oldest[fam]; !ok || name < cur {
			oldest[fam] = name
		}
	}

	var removed []string
	for _, fam := range []Family{FamilyAudit, FamilySlow, FamilyMain} {
		limit := caps.forFamily(fam)
		if limit < 0 {
			continue
		}
		if counts[fam] <= limit {
			continue
		}
		path := filepath.Join(dir, oldest[fam])
		if err := unlink(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}

	return removed, nil
}

// unlink removes path, falling back to rename-then-unlink if the direct
// remove fails because the file is still in use, per spec.md §4.5's
// "platforms where in-use files cannot be unlinked cleanly" clause.
func unlink(path string) error {
	err := os.Remove(path)
	if err == nil {
		return nil
	}
	deleted := path + ".deleted"
	if renameErr := os.Rename(path, deleted); renameErr != nil {
		return err
	}
	return os.Remove(deleted)
}
