package bridge

import (
	"testing"

	"github.com/sysloggerd/collector/internal/testutil"
)

func TestNewCreatesConnectedPipe(t *testing.T) {
	b, err := New()
	testutil.FatalIfErr(t, err)
	defer b.ReadEnd.Close()
	defer b.WriteEnd.Close()

	const msg = "ping"
	n, err := b.WriteEnd.WriteString(msg)
	testutil.FatalIfErr(t, err)
	if n != len(msg) {
		t.Fatalf("wrote %d bytes, want %d", n, len(msg))
	}

	buf := make([]byte, len(msg))
	n, err = b.ReadEnd.Read(buf)
	testutil.FatalIfErr(t, err)
	if string(buf[:n]) != msg {
		t.Errorf("read %q, want %q", buf[:n], msg)
	}
}

func TestCloseUnusedEndClosesWriteEndOnCollectorSide(t *testing.T) {
	b, err := New()
	testutil.FatalIfErr(t, err)
	defer b.ReadEnd.Close()

	testutil.FatalIfErr(t, b.CloseUnusedEnd(true))

	if _, err := b.WriteEnd.Write([]byte("x")); err == nil {
		t.Error("expected write to closed write end to fail")
	}
}

func TestCloseUnusedEndIsNoopOnSupervisorSide(t *testing.T) {
	b, err := New()
	testutil.FatalIfErr(t, err)
	defer b.ReadEnd.Close()
	defer b.WriteEnd.Close()

	if err := b.CloseUnusedEnd(false); err != nil {
		t.Errorf("CloseUnusedEnd(false) = %v, want nil (no-op on supervisor side)", err)
	}
}

func TestWriteStderrIsNoopBeforeRedirect(t *testing.T) {
	b, err := New()
	testutil.FatalIfErr(t, err)
	defer b.ReadEnd.Close()
	defer b.WriteEnd.Close()

	// Must not panic even though RedirectStandardStreams was never called.
	b.WriteStderr("should be discarded safely\n")
}
