// Package reassembly accumulates multi-chunk frames into complete records,
// one buffer per producer pid, without ever mixing bytes from two
// producers.
//
// Grounded on PolarDB's syslogger.c buffer_lists[NBUFFER_LISTS]/save_buffer
// (the per-pid bucket list with free-slot reuse spec.md §3 describes); the
// accumulate-into-*bytes.Buffer idiom follows the teacher's
// driver/log/tailer/logstream/decode.go decodeAndSend.
package reassembly

import (
	"bytes"

	"github.com/sysloggerd/collector/internal/record"
	"github.com/sysloggerd/collector/internal/wire"
)

// numBuckets matches spec.md's fixed 256-list bucket count (pid mod 256).
const numBuckets = 256

type slot struct {
	pid uint32 // 0 means free
	buf bytes.Buffer
}

// Reassembler holds per-pid accumulation state across the lifetime of one
// collector. It is not safe for concurrent use; the event loop owns it and
// calls it from a single goroutine.
type Reassembler struct {
	buckets [numBuckets][]*slot
}

// New creates an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{}
}

// Handle processes one wire.Event. For EventUnframed it immediately returns
// a Record routed to TEXT. For EventFramedChunk it either buffers the chunk
// (non-final) or emits the completed Record (final), returning nil in the
// non-final case since nothing is ready to write yet.
//
// The returned Record's Payload is a fresh copy safe to retain past the
// next call to Handle.
func (r *Reassembler) Handle(e wire.Event) *record.Record {
	if e.Kind == wire.EventUnframed {
		return record.New(0, record.Text, append([]byte(nil), e.Payload...))
	}

	bucket := e.PID % numBuckets
	list := r.buckets[bucket]

	var active, free *slot
	for _, s := range list {
		if s.pid == e.PID {
			active = s
			break
		}
		if s.pid == 0 && free == nil {
			free = s
		}
	}

	if !e.IsLast {
		if active != nil {
			active.buf.Write(e.Payload)
			return nil
		}
		if free == nil {
			free = &slot{}
			r.buckets[bucket] = append(list, free)
		}
		free.pid = e.PID
		free.buf.Reset()
		free.buf.Write(e.Payload)
		return nil
	}

	// Final chunk: complete the record and free the slot.
	if active != nil {
		active.buf.Write(e.Payload)
		payload := append([]byte(nil), active.buf.Bytes()...)
		active.pid = 0
		active.buf.Reset()
		return record.New(e.PID, e.Dest, payload)
	}
	return record.New(e.PID, e.Dest, append([]byte(nil), e.Payload...))
}

// FlushActive emits every still-active (incomplete) slot as a best-effort
// Record routed to TEXT, then frees all slots. It is called once, at
// shutdown, after pipe EOF has been observed, mirroring PolarDB's
// flush_pipe_input dumping incomplete protocol messages to stderr.
func (r *Reassembler) FlushActive(emit func(*record.Record)) {
	for i := range r.buckets {
		for _, s := range r.buckets[i] {
			if s.pid == 0 {
				continue
			}
			payload := append([]byte(nil), s.buf.Bytes()...)
			emit(record.New(s.pid, record.Text, payload))
			s.pid = 0
			s.buf.Reset()
		}
	}
}

// ActiveCount returns the number of currently active (non-free) slots
// across all buckets. Used by tests to assert the post-condition that no
// slot is left active once a pid's record completes.
func (r *Reassembler) ActiveCount() int {
	n := 0
	for i := range r.buckets {
		for _, s := range r.buckets[i] {
			if s.pid != 0 {
				n++
			}
		}
	}
	return n
}
