// Package wire implements the chunk framing protocol layered over the
// collector's input pipe.
//
// Wire format (see spec): two zero sentinel bytes, a little-endian uint16
// payload length, a little-endian uint32 producer pid, and one flags byte.
// The flags byte encodes exactly one destination bit plus an IS_LAST bit.
// A run of bytes that does not parse as a valid header is emitted unframed,
// routed to the TEXT destination, exactly as a third-party library's stray
// stderr write would be.
//
// Grounded on the literal algorithm of PolarDB's syslogger.c
// process_pipe_input/flush_pipe_input, generalized to the fixed Go header
// layout; the restartable, allocation-free decode-loop shape follows
// hayabusa-cloud-framer's framer package.
package wire

import (
	"encoding/binary"

	"github.com/sysloggerd/collector/internal/record"
)

// HeaderSize is the fixed size in bytes of a frame header: 2 sentinel bytes
// + 2-byte length + 4-byte pid + 1 flags byte.
const HeaderSize = 9

// Flag bits. Exactly one destination bit must be set for a header to be
// considered valid; IsLast is additionally ORed in in the terminal chunk of
// a multi-chunk record.
const (
	FlagText Flag = 1 << iota
	FlagCSV
	FlagJSON
	FlagAudit
	FlagSlow
	FlagIsLast

	destMask = FlagText | FlagCSV | FlagJSON | FlagAudit | FlagSlow
)

// Flag is the one-byte bitset trailing a frame header.
type Flag uint8

// destKind maps a single destination bit to its record.Kind. ok is false if
// flags does not carry exactly one destination bit.
func destKind(flags Flag) (kind record.Kind, ok bool) {
	switch flags & destMask {
	case FlagText:
		return record.Text, true
	case FlagCSV:
		return record.CSV, true
	case FlagJSON:
		return record.JSON, true
	case FlagAudit:
		return record.Audit, true
	case FlagSlow:
		return record.Slow, true
	default:
		return 0, false
	}
}

// popcount1 reports whether exactly one bit of the five destination bits in
// flags is set.
func popcount1(flags Flag) bool {
	_, ok := destKind(flags)
	return ok
}

// EventKind distinguishes the two event shapes the codec can emit.
type EventKind int

const (
	EventFramedChunk EventKind = iota
	EventUnframed
)

// Event is one parsed unit handed to the reassembler. For EventFramedChunk,
// PID, Dest and IsLast are populated; for EventUnframed only Payload is.
type Event struct {
	Kind    EventKind
	PID     uint32
	Dest    record.Kind
	IsLast  bool
	Payload []byte
}

// Decode parses as many complete events as possible out of buf[:n], invoking
// emit for each in order. It returns the number of trailing bytes in
// buf[:n] that were not consumed and must be left-justified (moved to the
// front of the buffer) before the next read. Decode never allocates beyond
// what emit's callee does with Payload, and never retains buf itself.
func Decode(buf []byte, n int, emit func(Event)) (unconsumed int) {
	cursor := 0
	for n-cursor >= HeaderSize+1 {
		b := buf[cursor:n]
		if ok, payloadLen, pid, flags := validHeader(b); ok {
			chunklen := HeaderSize + int(payloadLen)
			if n-cursor < chunklen {
				// Header is valid but the full payload hasn't arrived yet.
				break
			}
			dest, _ := destKind(flags)
			emit(Event{
				Kind:    EventFramedChunk,
				PID:     pid,
				Dest:    dest,
				IsLast:  flags&FlagIsLast != 0,
				Payload: b[HeaderSize:chunklen],
			})
			cursor += chunklen
			continue
		}

		// Invalid header: scan forward for the next zero byte, dumping
		// everything up to (but not including) it as unframed text. Always
		// consume at least one byte so the loop makes progress even when
		// b[0] itself is zero but the rest of the header doesn't validate.
		run := 1
		for run < n-cursor && b[run] != 0 {
			run++
		}
		emit(Event{Kind: EventUnframed, Payload: b[:run]})
		cursor += run
	}
	return n - cursor
}

// validHeader reports whether b begins with a well-formed frame header, and
// if so returns the decoded length, pid and flags. It does not check that
// the payload is present; Decode handles that separately so that a valid
// but incomplete header can be distinguished from an invalid one.
func validHeader(b []byte) (ok bool, payloadLen uint16, pid uint32, flags Flag) {
	if len(b) < HeaderSize {
		return false, 0, 0, 0
	}
	if b[0] != 0 || b[1] != 0 {
		return false, 0, 0, 0
	}
	payloadLen = binary.LittleEndian.Uint16(b[2:4])
	pid = binary.LittleEndian.Uint32(b[4:8])
	flags = Flag(b[8])
	if payloadLen == 0 || pid == 0 {
		return false, 0, 0, 0
	}
	if !popcount1(flags) {
		return false, 0, 0, 0
	}
	return true, payloadLen, pid, flags
}
