package wire_test

import (
	"testing"

	"github.com/sysloggerd/collector/internal/record"
	"github.com/sysloggerd/collector/internal/testutil"
	"github.com/sysloggerd/collector/internal/wire"
)

func TestDecodeSingleChunkRecord(t *testing.T) {
	var buf []byte
	buf = wire.Encode(buf, 42, record.Text, []byte("hello"), true)

	var events []wire.Event
	unconsumed := wire.Decode(buf, len(buf), func(e wire.Event) {
		events = append(events, e)
	})

	if unconsumed != 0 {
		t.Fatalf("unconsumed = %d, want 0", unconsumed)
	}
	want := []wire.Event{{
		Kind:    wire.EventFramedChunk,
		PID:     42,
		Dest:    record.Text,
		IsLast:  true,
		Payload: []byte("hello"),
	}}
	testutil.ExpectNoDiff(t, want, events)
}

func TestDecodeSplitAcrossHeaderBoundary(t *testing.T) {
	var full []byte
	full = wire.Encode(full, 42, record.Text, []byte("hello"), true)

	// Split after header + 2 payload bytes, as spec.md's boundary test
	// prescribes.
	first := append([]byte(nil), full[:wire.HeaderSize+2]...)

	var events []wire.Event
	unconsumed := wire.Decode(first, len(first), func(e wire.Event) {
		events = append(events, e)
	})
	if len(events) != 0 {
		t.Fatalf("expected no events from a partial frame, got %v", events)
	}
	if unconsumed != len(first) {
		t.Fatalf("unconsumed = %d, want %d (whole partial frame left for next read)", unconsumed, len(first))
	}

	// Left-justify (as the event loop would) and append the rest.
	rest := append([]byte(nil), first...)
	rest = append(rest, full[wire.HeaderSize+2:]...)

	events = nil
	unconsumed = wire.Decode(rest, len(rest), func(e wire.Event) {
		events = append(events, e)
	})
	if unconsumed != 0 {
		t.Fatalf("unconsumed = %d, want 0", unconsumed)
	}
	want := []wire.Event{{
		Kind:    wire.EventFramedChunk,
		PID:     42,
		Dest:    record.Text,
		IsLast:  true,
		Payload: []byte("hello"),
	}}
	testutil.ExpectNoDiff(t, want, events)
}

func TestDecodeUnframedBlob(t *testing.T) {
	// At least HeaderSize+1 bytes, so Decode classifies it now; a shorter
	// tail stays unconsumed until more bytes arrive or EOF flushes it.
	input := []byte("oops: stray library output\n")

	var events []wire.Event
	unconsumed := wire.Decode(input, len(input), func(e wire.Event) {
		events = append(events, e)
	})
	if unconsumed != 0 {
		t.Fatalf("unconsumed = %d, want 0", unconsumed)
	}
	want := []wire.Event{{Kind: wire.EventUnframed, Payload: []byte("oops: stray library output\n")}}
	testutil.ExpectNoDiff(t, want, events)
}

func TestDecodeUnframedThenFramed(t *testing.T) {
	var buf []byte
	buf = append(buf, "oops"...)
	buf = append(buf, 0) // stray zero: the unframed scan stops before it, not past it
	buf = wire.Encode(buf, 7, record.CSV, []byte("x"), true)

	var events []wire.Event
	unconsumed := wire.Decode(buf, len(buf), func(e wire.Event) {
		events = append(events, e)
	})
	if unconsumed != 0 {
		t.Fatalf("unconsumed = %d, want 0", unconsumed)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %v", len(events), events)
	}
	if events[0].Kind != wire.EventUnframed || string(events[0].Payload) != "oops" {
		t.Fatalf("event[0] = %+v", events[0])
	}
	if events[1].Kind != wire.EventUnframed || string(events[1].Payload) != "\x00" {
		t.Fatalf("event[1] = %+v, want the stray zero byte emitted unframed on its own", events[1])
	}
	if events[2].Kind != wire.EventFramedChunk || events[2].Dest != record.CSV {
		t.Fatalf("event[2] = %+v", events[2])
	}
}

func TestDecodeZeroLengthPayloadIsRejected(t *testing.T) {
	// A header with len=0 must fail validity and fall through to unframed
	// handling, per spec.md's boundary requirement.
	buf := make([]byte, wire.HeaderSize+1)
	buf[0], buf[1] = 0, 0 // sentinel
	// length stays 0
	buf[4] = 9 // pid != 0
	buf[8] = byte(wire.FlagText)
	buf[wire.HeaderSize] = 'x'

	var events []wire.Event
	wire.Decode(buf, len(buf), func(e wire.Event) {
		events = append(events, e)
	})
	for _, e := range events {
		if e.Kind == wire.EventFramedChunk {
			t.Fatalf("zero-length payload must not produce a framed chunk: %+v", e)
		}
	}
}

func TestDecodeTwoProducerInterleave(t *testing.T) {
	var buf []byte
	buf = wire.Encode(buf, 7, record.Text, []byte("ab"), false)
	buf = wire.Encode(buf, 9, record.Text, []byte("X"), true)
	buf = wire.Encode(buf, 7, record.Text, []byte("c"), true)

	var events []wire.Event
	unconsumed := wire.Decode(buf, len(buf), func(e wire.Event) {
		events = append(events, e)
	})
	if unconsumed != 0 {
		t.Fatalf("unconsumed = %d, want 0", unconsumed)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].PID != 7 || events[0].IsLast {
		t.Fatalf("event[0] = %+v", events[0])
	}
	if events[1].PID != 9 || !events[1].IsLast {
		t.Fatalf("event[1] = %+v", events[1])
	}
	if events[2].PID != 7 || !events[2].IsLast {
		t.Fatalf("event[2] = %+v", events[2])
	}
}
