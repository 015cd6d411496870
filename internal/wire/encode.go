package wire

import (
	"encoding/binary"

	"github.com/sysloggerd/collector/internal/record"
)

// Encode appends one frame (header + payload) for pid/dest/payload to dst,
// setting IS_LAST according to last, and returns the extended slice. It is
// used by tests and by anything simulating a producer; the collector itself
// never encodes frames.
func Encode(dst []byte, pid uint32, dest record.Kind, payload []byte, last bool) []byte {
	flags := destFlag(dest)
	if last {
		flags |= FlagIsLast
	}
	var hdr [HeaderSize]byte
	hdr[0], hdr[1] = 0, 0
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:8], pid)
	hdr[8] = byte(flags)
	dst = append(dst, hdr[:]...)
	dst = append(dst, payload...)
	return dst
}

func destFlag(k record.Kind) Flag {
	switch k {
	case record.Text:
		return FlagText
	case record.CSV:
		return FlagCSV
	case record.JSON:
		return FlagJSON
	case record.Audit:
		return FlagAudit
	case record.Slow:
		return FlagSlow
	default:
		return FlagText
	}
}
