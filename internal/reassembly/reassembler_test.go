package reassembly

import (
	"testing"

	"github.com/sysloggerd/collector/internal/record"
	"github.com/sysloggerd/collector/internal/testutil"
	"github.com/sysloggerd/collector/internal/wire"
)

func TestHandleUnframedEmitsImmediately(t *testing.T) {
	r := New()
	got := r.Handle(wire.Event{Kind: wire.EventUnframed, Payload: []byte("hello\n")})
	want := record.New(0, record.Text, []byte("hello\n"))
	testutil.ExpectNoDiff(t, want, got, testutil.IgnoreUnexported(record.Record{}))
	if n := r.ActiveCount(); n != 0 {
		t.Errorf("ActiveCount() = %d, want 0", n)
	}
}

func TestHandleSingleChunkRecord(t *testing.T) {
	r := New()
	got := r.Handle(wire.Event{
		Kind: wire.EventFramedChunk, PID: 42, Dest: record.CSV, IsLast: true,
		Payload: []byte("a,b,c\n"),
	})
	if got == nil {
		t.Fatalf("Handle() = nil, want a completed record")
	}
	want := record.New(42, record.CSV, []byte("a,b,c\n"))
	testutil.ExpectNoDiff(t, want, got, testutil.IgnoreUnexported(record.Record{}))
}

func TestHandleMultiChunkAccumulates(t *testing.T) {
	r := New()
	if got := r.Handle(wire.Event{Kind: wire.EventFramedChunk, PID: 7, IsLast: false, Payload: []byte("part1-")}); got != nil {
		t.Fatalf("non-final chunk returned %v, want nil", got)
	}
	if n := r.ActiveCount(); n != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", n)
	}
	if got := r.Handle(wire.Event{Kind: wire.EventFramedChunk, PID: 7, IsLast: false, Payload: []byte("part2-")}); got != nil {
		t.Fatalf("non-final chunk returned %v, want nil", got)
	}
	got := r.Handle(wire.Event{Kind: wire.EventFramedChunk, PID: 7, Dest: record.Text, IsLast: true, Payload: []byte("part3")})
	want := record.New(7, record.Text, []byte("part1-part2-part3"))
	testutil.ExpectNoDiff(t, want, got, testutil.IgnoreUnexported(record.Record{}))
	if n := r.ActiveCount(); n != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after completion", n)
	}
}

func TestHandleTwoProducersInterleaveWithoutMixing(t *testing.T) {
	r := New()
	r.Handle(wire.Event{Kind: wire.EventFramedChunk, PID: 1, IsLast: false, Payload: []byte("AAA-")})
	r.Handle(wire.Event{Kind: wire.EventFramedChunk, PID: 2, IsLast: false, Payload: []byte("BBB-")})
	r.Handle(wire.Event{Kind: wire.EventFramedChunk, PID: 1, IsLast: false, Payload: []byte("AAA-")})
	got1 := r.Handle(wire.Event{Kind: wire.EventFramedChunk, PID: 1, Dest: record.Text, IsLast: true, Payload: []byte("AAA")})
	got2 := r.Handle(wire.Event{Kind: wire.EventFramedChunk, PID: 2, Dest: record.Text, IsLast: true, Payload: []byte("BBB")})

	testutil.ExpectNoDiff(t, record.New(1, record.Text, []byte("AAA-AAA-AAA")), got1, testutil.IgnoreUnexported(record.Record{}))
	testutil.ExpectNoDiff(t, record.New(2, record.Text, []byte("BBB-BBB")), got2, testutil.IgnoreUnexported(record.Record{}))
}

func TestFreeSlotIsReusedAfterCompletion(t *testing.T) {
	r := New()
	r.Handle(wire.Event{Kind: wire.EventFramedChunk, PID: 5, IsLast: false, Payload: []byte("x")})
	r.Handle(wire.Event{Kind: wire.EventFramedChunk, PID: 5, IsLast: true, Payload: []byte("y")})
	if n := r.ActiveCount(); n != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", n)
	}
	r.Handle(wire.Event{Kind: wire.EventFramedChunk, PID: 261, IsLast: false, Payload: []byte("z")}) // same bucket as pid 5 (261 % 256 == 5)
	if n := r.ActiveCount(); n != 1 {
		t.Fatalf("ActiveCount() = %d, want 1 (slot reused)", n)
	}
}

func TestFlushActiveEmitsIncompleteBuffersAsText(t *testing.T) {
	r := New()
	r.Handle(wire.Event{Kind: wire.EventFramedChunk, PID: 9, Dest: record.JSON, IsLast: false, Payload: []byte("{\"partial")})
	r.Handle(wire.Event{Kind: wire.EventFramedChunk, PID: 3, Dest: record.Audit, IsLast: false, Payload: []byte("incomplete")})

	var flushed []*record.Record
	r.FlushActive(func(rec *record.Record) { flushed = append(flushed, rec) })

	if len(flushed) != 2 {
		t.Fatalf("FlushActive emitted %d records, want 2", len(flushed))
	}
	for _, rec := range flushed {
		if rec.Dest != record.Text {
			t.Errorf("flushed record for pid %d routed to %s, want TEXT", rec.PID, rec.Dest)
		}
	}
	if n := r.ActiveCount(); n != 0 {
		t.Errorf("ActiveCount() = %d after flush, want 0", n)
	}
}
